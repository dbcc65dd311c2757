package mqttcore

import "io"

// PubrecPacket is the PUBREC control packet, the first ack of a QoS 2 flow.
type PubrecPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (p *PubrecPacket) Type() PacketType        { return PacketPUBREC }
func (p *PubrecPacket) Properties() *Properties { return &p.Props }
func (p *PubrecPacket) GetPacketID() uint16     { return p.PacketID }
func (p *PubrecPacket) SetPacketID(id uint16)   { p.PacketID = id }

func (p *PubrecPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return encodeAck(w, PacketPUBREC, 0x00, &ackPacket{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Props: p.Props}, version)
}

func (p *PubrecPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketPUBREC {
		return 0, ErrInvalidPacketType
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, version)
	p.PacketID = ack.PacketID
	p.ReasonCode = ack.ReasonCode
	p.Props = ack.Props
	return n, err
}

func (p *PubrecPacket) Validate() error {
	if !p.ReasonCode.ValidForPUBREC() {
		return ErrInvalidReasonCode
	}
	return nil
}
