package mqttcore

import (
	"bytes"
	"io"
)

// AuthPacket is the AUTH control packet, used for enhanced authentication
// exchanges. AUTH has no meaning under v3.1.1; a v3.1.1 endpoint that
// receives one treats it as a protocol error at the codec boundary.
type AuthPacket struct {
	ReasonCode ReasonCode
	Props      Properties
}

func (p *AuthPacket) Type() PacketType        { return PacketAUTH }
func (p *AuthPacket) Properties() *Properties { return &p.Props }

func (p *AuthPacket) Encode(w io.Writer, _ ProtocolVersion) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if p.ReasonCode != ReasonSuccess || p.Props.Len() > 0 {
		if err := buf.WriteByte(byte(p.ReasonCode)); err != nil {
			return 0, err
		}
		if p.Props.Len() > 0 {
			if _, err := p.Props.Encode(&buf); err != nil {
				return 0, err
			}
		}
	}

	header := FixedHeader{PacketType: PacketAUTH, Flags: 0x00, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *AuthPacket) Decode(r io.Reader, header FixedHeader, _ ProtocolVersion) (int, error) {
	if header.PacketType != PacketAUTH {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x00 {
		return 0, ErrInvalidPacketFlags
	}

	var totalRead int

	p.ReasonCode = ReasonSuccess
	if header.RemainingLength == 0 {
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

func (p *AuthPacket) Validate() error {
	if !p.ReasonCode.ValidForAUTH() {
		return ErrInvalidReasonCode
	}
	return nil
}
