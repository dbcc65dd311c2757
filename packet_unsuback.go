package mqttcore

import (
	"bytes"
	"io"
)

// UnsubackPacket is the UNSUBACK control packet. Under v3.1.1 it carries
// only the packet id — no reason codes, no properties.
type UnsubackPacket struct {
	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

func (p *UnsubackPacket) Type() PacketType        { return PacketUNSUBACK }
func (p *UnsubackPacket) Properties() *Properties { return &p.Props }
func (p *UnsubackPacket) GetPacketID() uint16     { return p.PacketID }
func (p *UnsubackPacket) SetPacketID(id uint16)   { p.PacketID = id }

func (p *UnsubackPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
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
		for _, rc := range p.ReasonCodes {
			if err := buf.WriteByte(byte(rc)); err != nil {
				return 0, err
			}
		}
	}

	header := FixedHeader{PacketType: PacketUNSUBACK, Flags: 0x00, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *UnsubackPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketUNSUBACK {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	var idBuf [2]byte
	n, err := io.ReadFull(r, idBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])

	if version != MQTT5 {
		return totalRead, nil
	}

	n, err = p.Props.Decode(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	p.ReasonCodes = nil
	for totalRead < int(header.RemainingLength) {
		var rcBuf [1]byte
		n, err = io.ReadFull(r, rcBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.ReasonCodes = append(p.ReasonCodes, ReasonCode(rcBuf[0]))
	}

	return totalRead, nil
}

func (p *UnsubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	for _, rc := range p.ReasonCodes {
		if !rc.ValidForUNSUBACK() {
			return ErrInvalidReasonCode
		}
	}
	return nil
}
