package mqttcore

import (
	"bytes"
	"errors"
	"io"
)

const (
	protocolName = "MQTT"

	connectFlagCleanStart   = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPasswordFlag = 0x40
	connectFlagUsernameFlag = 0x80
)

var (
	ErrInvalidProtocolName    = errors.New("mqttcore: invalid protocol name")
	ErrInvalidProtocolVersion = errors.New("mqttcore: unsupported protocol version")
	ErrInvalidConnectFlags    = errors.New("mqttcore: invalid connect flags")
	ErrClientIDTooLong        = errors.New("mqttcore: client id too long")
	ErrClientIDRequired       = errors.New("mqttcore: client id required with clean start false")
)

// ConnectPacket is the CONNECT control packet. CleanStart is the v5 name for
// what v3.1.1 calls the Clean Session flag; the wire bit is identical.
type ConnectPacket struct {
	ClientID   string
	CleanStart bool
	KeepAlive  uint16
	Props      Properties

	Username string
	Password []byte

	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillPayload []byte
	WillProps   Properties
}

func (p *ConnectPacket) Type() PacketType        { return PacketCONNECT }
func (p *ConnectPacket) Properties() *Properties { return &p.Props }

func (p *ConnectPacket) connectFlags() byte {
	var flags byte
	if p.CleanStart {
		flags |= connectFlagCleanStart
	}
	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if len(p.Password) > 0 {
		flags |= connectFlagPasswordFlag
	}
	if p.Username != "" {
		flags |= connectFlagUsernameFlag
	}
	return flags
}

func (p *ConnectPacket) setConnectFlags(flags byte) error {
	if flags&0x01 != 0 {
		return ErrInvalidConnectFlags
	}

	p.CleanStart = flags&connectFlagCleanStart != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&connectFlagWillRetain != 0

	if !p.WillFlag && p.WillQoS != 0 {
		return ErrInvalidConnectFlags
	}
	if !p.WillFlag && p.WillRetain {
		return ErrInvalidConnectFlags
	}
	if p.WillQoS > 2 {
		return ErrInvalidConnectFlags
	}
	return nil
}

func (p *ConnectPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, protocolName); err != nil {
		return 0, err
	}
	if err := buf.WriteByte(byte(version)); err != nil {
		return 0, err
	}
	if err := buf.WriteByte(p.connectFlags()); err != nil {
		return 0, err
	}
	if _, err := buf.Write([]byte{byte(p.KeepAlive >> 8), byte(p.KeepAlive)}); err != nil {
		return 0, err
	}

	if version == MQTT5 {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}

	if p.WillFlag {
		if version == MQTT5 {
			if _, err := p.WillProps.Encode(&buf); err != nil {
				return 0, err
			}
		}
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}
		if _, err := encodeBinary(&buf, p.WillPayload); err != nil {
			return 0, err
		}
	}

	if p.Username != "" {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}
	if len(p.Password) > 0 {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{PacketType: PacketCONNECT, Flags: 0x00, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *ConnectPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketCONNECT {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	protoName, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if protoName != protocolName {
		return totalRead, ErrInvalidProtocolName
	}

	var versionBuf [1]byte
	n, err = io.ReadFull(r, versionBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if ProtocolVersion(versionBuf[0]) != version {
		return totalRead, ErrInvalidProtocolVersion
	}

	var flagsBuf [1]byte
	n, err = io.ReadFull(r, flagsBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if err := p.setConnectFlags(flagsBuf[0]); err != nil {
		return totalRead, err
	}
	usernameFlag := flagsBuf[0]&connectFlagUsernameFlag != 0
	passwordFlag := flagsBuf[0]&connectFlagPasswordFlag != 0

	var keepAliveBuf [2]byte
	n, err = io.ReadFull(r, keepAliveBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.KeepAlive = uint16(keepAliveBuf[0])<<8 | uint16(keepAliveBuf[1])

	if version == MQTT5 {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	p.ClientID, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if p.WillFlag {
		if version == MQTT5 {
			n, err = p.WillProps.Decode(r)
			totalRead += n
			if err != nil {
				return totalRead, err
			}
		}
		p.WillTopic, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.WillPayload, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if usernameFlag {
		p.Username, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}
	if passwordFlag {
		p.Password, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, nil
}

func (p *ConnectPacket) Validate() error {
	if len(p.ClientID) > maxUint16 {
		return ErrClientIDTooLong
	}
	if !p.CleanStart && p.ClientID == "" {
		return ErrClientIDRequired
	}
	if p.WillQoS > 2 {
		return ErrInvalidConnectFlags
	}
	if !p.WillFlag && (p.WillRetain || p.WillQoS != 0) {
		return ErrInvalidConnectFlags
	}
	return nil
}
