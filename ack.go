package mqttcore

import (
	"bytes"
	"io"
)

// ackPacket is the shared shape of PUBACK, PUBREC, PUBREL and PUBCOMP: a
// packet id, an optional reason code, and optional v5 properties. v3.1.1
// acks are just the two packet-id bytes with nothing else on the wire.
type ackPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func encodeAck(w io.Writer, packetType PacketType, flags byte, ack *ackPacket, version ProtocolVersion) (int, error) {
	var buf bytes.Buffer

	if _, err := buf.Write([]byte{byte(ack.PacketID >> 8), byte(ack.PacketID)}); err != nil {
		return 0, err
	}

	if version == MQTT5 && (ack.ReasonCode != ReasonSuccess || ack.Props.Len() > 0) {
		if err := buf.WriteByte(byte(ack.ReasonCode)); err != nil {
			return 2, err
		}
		if ack.Props.Len() > 0 {
			if _, err := ack.Props.Encode(&buf); err != nil {
				return 3, err
			}
		}
	}

	header := FixedHeader{PacketType: packetType, Flags: flags, RemainingLength: uint32(buf.Len())}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func decodeAck(r io.Reader, header FixedHeader, ack *ackPacket, version ProtocolVersion) (int, error) {
	var totalRead int

	var idBuf [2]byte
	n, err := io.ReadFull(r, idBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	ack.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])

	ack.ReasonCode = ReasonSuccess
	if version != MQTT5 || header.RemainingLength <= 2 {
		return totalRead, nil
	}

	var reasonBuf [1]byte
	n, err = io.ReadFull(r, reasonBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	ack.ReasonCode = ReasonCode(reasonBuf[0])

	if header.RemainingLength > 3 {
		n, err = ack.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, nil
}
