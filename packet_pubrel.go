package mqttcore

import "io"

// PubrelPacket is the PUBREL control packet, the release step of a QoS 2
// flow. Its flags nibble is fixed at 0x02, like SUBSCRIBE/UNSUBSCRIBE.
type PubrelPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (p *PubrelPacket) Type() PacketType        { return PacketPUBREL }
func (p *PubrelPacket) Properties() *Properties { return &p.Props }
func (p *PubrelPacket) GetPacketID() uint16     { return p.PacketID }
func (p *PubrelPacket) SetPacketID(id uint16)   { p.PacketID = id }

func (p *PubrelPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return encodeAck(w, PacketPUBREL, 0x02, &ackPacket{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Props: p.Props}, version)
}

func (p *PubrelPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketPUBREL {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x02 {
		return 0, ErrInvalidPacketFlags
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, version)
	p.PacketID = ack.PacketID
	p.ReasonCode = ack.ReasonCode
	p.Props = ack.Props
	return n, err
}

func (p *PubrelPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if !p.ReasonCode.ValidForPUBREL() {
		return ErrInvalidReasonCode
	}
	return nil
}
