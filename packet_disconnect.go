package mqttcore

import (
	"bytes"
	"io"
)

// DisconnectPacket is the DISCONNECT control packet. v3.1.1 DISCONNECT has
// no payload at all: ReasonCode and Props are v5-only and silently dropped
// on encode, always zero on decode.
type DisconnectPacket struct {
	ReasonCode ReasonCode
	Props      Properties
}

func (p *DisconnectPacket) Type() PacketType        { return PacketDISCONNECT }
func (p *DisconnectPacket) Properties() *Properties { return &p.Props }

func (p *DisconnectPacket) Encode(w io.Writer, version ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if version == MQTT5 && (p.ReasonCode != ReasonSuccess || p.Props.Len() > 0) {
		if err := buf.WriteByte(byte(p.ReasonCode)); err != nil {
			return 0, err
		}
		if p.Props.Len() > 0 {
			if _, err := p.Props.Encode(&buf); err != nil {
				return 0, err
			}
		}
	}

	header := FixedHeader{PacketType: PacketDISCONNECT, Flags: 0x00, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *DisconnectPacket) Decode(r io.Reader, header FixedHeader, version ProtocolVersion) (int, error) {
	if header.PacketType != PacketDISCONNECT {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x00 {
		return 0, ErrInvalidPacketFlags
	}

	var totalRead int

	p.ReasonCode = ReasonSuccess
	if version != MQTT5 || header.RemainingLength == 0 {
		return totalRead, nil
	}

	var reasonBuf [1]byte
	n, err := io.ReadFull(r, reasonBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.ReasonCode = ReasonCode(reasonBuf[0])

	if header.RemainingLength > 1 {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, nil
}

func (p *DisconnectPacket) Validate() error {
	if !p.ReasonCode.ValidForDISCONNECT() {
		return ErrInvalidReasonCode
	}
	return nil
}
