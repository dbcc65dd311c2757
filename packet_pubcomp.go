package mqttcore

import "io"

// PubcompPacket is the PUBCOMP control packet, completing a QoS 2 flow.
type PubcompPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (p *PubcompPacket) Type() PacketType        { return PacketPUBCOMP }
func (p *PubcompPacket) Properties() *Properties { return &p.Props }
func (p *PubcompPacket) GetPacketID() uint16     { return p.PacketID }
func (p *PubcompPacket) SetPacketID(id uint16)   { p.PacketID = id }

func (p *PubcompPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return encodeAck(w, PacketPUBCOMP, 0x00, &ackPacket{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Props: p.Props}, version)
}

func (p *PubcompPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketPUBCOMP {
		return 0, ErrInvalidPacketType
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, version)
	p.PacketID = ack.PacketID
	p.ReasonCode = ack.ReasonCode
	p.Props = ack.Props
	return n, err
}

func (p *PubcompPacket) Validate() error {
	if !p.ReasonCode.ValidForPUBCOMP() {
		return ErrInvalidReasonCode
	}
	return nil
}
