package mqttcore

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrInvalidPacketID             = errors.New("mqttcore: invalid packet identifier")
	ErrProtocolViolation           = errors.New("mqttcore: protocol violation")
	ErrInvalidSubscriptionID       = errors.New("mqttcore: invalid subscription identifier")
	maxSubscriptionIdentifierValue = uint32(268435455)
)

// Subscription is a topic filter with its v5 subscription options. Under
// v3.1.1 only QoS is meaningful; NoLocal, RetainAsPublish, RetainHandling
// and SubscriptionID are always zero on that wire.
type Subscription struct {
	TopicFilter     string
	QoS             byte
	NoLocal         bool
	RetainAsPublish bool
	RetainHandling  byte
	SubscriptionID  uint32
}

// SubscribePacket is the SUBSCRIBE control packet.
type SubscribePacket struct {
	PacketID      uint16
	Props         Properties
	Subscriptions []Subscription
}

func (p *SubscribePacket) Type() PacketType        { return PacketSUBSCRIBE }
func (p *SubscribePacket) Properties() *Properties { return &p.Props }
func (p *SubscribePacket) GetPacketID() uint16     { return p.PacketID }
func (p *SubscribePacket) SetPacketID(id uint16)   { p.PacketID = id }

func (p *SubscribePacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := buf.Write([]byte{byte(p.PacketID >> 8), byte(p.PacketID)}); err != nil {
		return 0, err
	}

	if version == MQTT5 {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	for _, sub := range p.Subscriptions {
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}

		options := sub.QoS & 0x03
		if version == MQTT5 {
			if sub.NoLocal {
				options |= 0x04
			}
			if sub.RetainAsPublish {
				options |= 0x08
			}
			options |= (sub.RetainHandling & 0x03) << 4
		}
		if err := buf.WriteByte(options); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketSUBSCRIBE {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x02 {
		return 0, ErrInvalidPacketFlags
	}

	var totalRead int

	var idBuf [2]byte
	n, err := io.ReadFull(r, idBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])

	var subscriptionID uint32
	if version == MQTT5 {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if p.Props.Has(PropSubscriptionIdentifier) {
			subscriptionID = p.Props.GetUint32(PropSubscriptionIdentifier)
			if subscriptionID == 0 || subscriptionID > maxSubscriptionIdentifierValue {
				return totalRead, ErrInvalidSubscriptionID
			}
		}
	}

	p.Subscriptions = nil
	for totalRead < int(header.RemainingLength) {
		var sub Subscription

		topicFilter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		sub.TopicFilter = topicFilter

		var optBuf [1]byte
		n, err = io.ReadFull(r, optBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		options := optBuf[0]

		sub.QoS = options & 0x03
		if version == MQTT5 {
			sub.NoLocal = (options & 0x04) != 0
			sub.RetainAsPublish = (options & 0x08) != 0
			sub.RetainHandling = (options >> 4) & 0x03
			if (options & 0xC0) != 0 {
				return totalRead, ErrProtocolViolation
			}
		} else if (options & 0xFC) != 0 {
			return totalRead, ErrProtocolViolation
		}

		sub.SubscriptionID = subscriptionID
		p.Subscriptions = append(p.Subscriptions, sub)
	}

	return totalRead, nil
}

func (p *SubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.Subscriptions) == 0 {
		return ErrProtocolViolation
	}
	for _, sub := range p.Subscriptions {
		if sub.TopicFilter == "" {
			return ErrProtocolViolation
		}
		if sub.QoS > 2 {
			return ErrInvalidQoS
		}
		if sub.RetainHandling > 2 {
			return ErrProtocolViolation
		}
	}
	return nil
}
