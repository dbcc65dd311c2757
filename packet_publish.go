package mqttcore

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrTopicNameEmpty   = errors.New("mqttcore: topic name cannot be empty")
	ErrInvalidQoS       = errors.New("mqttcore: invalid qos level")
	ErrPacketIDRequired = errors.New("mqttcore: packet identifier required for qos > 0")
)

// PublishPacket is the PUBLISH control packet.
type PublishPacket struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool
	DUP      bool
	PacketID uint16
	Props    Properties
}

func (p *PublishPacket) Type() PacketType        { return PacketPUBLISH }
func (p *PublishPacket) Properties() *Properties { return &p.Props }

func (p *PublishPacket) GetPacketID() uint16   { return p.PacketID }
func (p *PublishPacket) SetPacketID(id uint16) { p.PacketID = id }

func (p *PublishPacket) flags() byte {
	var flags byte
	if p.DUP {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}
	return flags
}

func (p *PublishPacket) setFlags(flags byte) {
	p.DUP = flags&0x08 != 0
	p.QoS = (flags >> 1) & 0x03
	p.Retain = flags&0x01 != 0
}

func (p *PublishPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, p.Topic); err != nil {
		return 0, err
	}

	if p.QoS > 0 {
		if _, err := buf.Write([]byte{byte(p.PacketID >> 8), byte(p.PacketID)}); err != nil {
			return 0, err
		}
	}

	if version == MQTT5 {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	if _, err := buf.Write(p.Payload); err != nil {
		return 0, err
	}

	header := FixedHeader{PacketType: PacketPUBLISH, Flags: p.flags(), RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *PublishPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketPUBLISH {
		return 0, ErrInvalidPacketType
	}

	p.setFlags(header.Flags)
	if p.QoS > 2 {
		return 0, ErrInvalidQoS
	}

	var totalRead int

	var n int
	var err error
	p.Topic, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if p.QoS > 0 {
		var idBuf [2]byte
		n, err = io.ReadFull(r, idBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])
	}

	if version == MQTT5 {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	payloadLen := int(header.RemainingLength) - totalRead
	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		n, err = io.ReadFull(r, p.Payload)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, nil
}

func (p *PublishPacket) Validate() error {
	if p.QoS > 2 {
		return ErrInvalidQoS
	}
	if p.QoS == 0 && p.DUP {
		return ErrInvalidPacketFlags
	}
	if p.QoS > 0 && p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	return nil
}

// ToMessage converts the PUBLISH packet to a Message.
func (p *PublishPacket) ToMessage() *Message {
	m := &Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
	m.FromProperties(&p.Props)
	return m
}

// FromMessage populates the PUBLISH packet from a Message.
func (p *PublishPacket) FromMessage(m *Message) {
	p.Topic = m.Topic
	p.Payload = m.Payload
	p.QoS = m.QoS
	p.Retain = m.Retain
	p.Props = m.ToProperties()
}
