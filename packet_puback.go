package mqttcore

import "io"

// PubackPacket is the PUBACK control packet, acknowledging a QoS 1 PUBLISH.
type PubackPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (p *PubackPacket) Type() PacketType        { return PacketPUBACK }
func (p *PubackPacket) Properties() *Properties { return &p.Props }
func (p *PubackPacket) GetPacketID() uint16     { return p.PacketID }
func (p *PubackPacket) SetPacketID(id uint16)   { p.PacketID = id }

func (p *PubackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return encodeAck(w, PacketPUBACK, 0x00, &ackPacket{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Props: p.Props}, version)
}

func (p *PubackPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketPUBACK {
		return 0, ErrInvalidPacketType
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, version)
	p.PacketID = ack.PacketID
	p.ReasonCode = ack.ReasonCode
	p.Props = ack.Props
	return n, err
}

func (p *PubackPacket) Validate() error {
	if !p.ReasonCode.ValidForPUBACK() {
		return ErrInvalidReasonCode
	}
	return nil
}
