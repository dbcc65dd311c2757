package mqttcore

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrInvalidConnackFlags = errors.New("mqttcore: invalid connack flags")
	ErrInvalidReasonCode   = errors.New("mqttcore: invalid reason code for packet type")
)

// ConnackPacket is the CONNACK control packet. Under v3.1.1, ReasonCode is
// encoded through connack311ReturnCode's restricted six-value vocabulary
// and Props is never written or read.
type ConnackPacket struct {
	SessionPresent bool
	ReasonCode     ReasonCode
	Props          Properties
}

func (p *ConnackPacket) Type() PacketType        { return PacketCONNACK }
func (p *ConnackPacket) Properties() *Properties { return &p.Props }

func (p *ConnackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	var flags byte
	if p.SessionPresent {
		flags = 0x01
	}
	if err := buf.WriteByte(flags); err != nil {
		return 0, err
	}

	if version == MQTT5 {
		if err := buf.WriteByte(byte(p.ReasonCode)); err != nil {
			return 1, err
		}
		if _, err := p.Props.Encode(&buf); err != nil {
			return 2, err
		}
	} else {
		if err := buf.WriteByte(connack311ReturnCode(p.ReasonCode)); err != nil {
			return 1, err
		}
	}

	header := FixedHeader{PacketType: PacketCONNACK, Flags: 0x00, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	var flagsBuf [1]byte
	n, err := io.ReadFull(r, flagsBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if flagsBuf[0]&0xFE != 0 {
		return totalRead, ErrInvalidConnackFlags
	}
	p.SessionPresent = flagsBuf[0]&0x01 != 0

	var reasonBuf [1]byte
	n, err = io.ReadFull(r, reasonBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if version == MQTT5 {
		p.ReasonCode = ReasonCode(reasonBuf[0])
		if header.RemainingLength > 2 {
			n, err = p.Props.Decode(r)
			totalRead += n
			if err != nil {
				return totalRead, err
			}
		}
	} else {
		p.ReasonCode = reasonFromConnack311(reasonBuf[0])
	}

	return totalRead, nil
}

func (p *ConnackPacket) Validate() error {
	if !p.ReasonCode.ValidForCONNACK() {
		return ErrInvalidReasonCode
	}
	if p.ReasonCode != ReasonSuccess && p.SessionPresent {
		return ErrInvalidConnackFlags
	}
	return nil
}
