package mqttcore

import (
	"bytes"
	"errors"
	"io"
)

var ErrUnknownPacketType = errors.New("mqttcore: unknown packet type")

// newPacket allocates the zero-value Packet for a decoded fixed header.
func newPacket(t PacketType) (Packet, error) {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	case PacketAUTH:
		return &AuthPacket{}, nil
	default:
		return nil, ErrUnknownPacketType
	}
}

// ReadPacket reads one complete control packet from r. It is a blocking
// alternative to FrameReader, reading the header and body with
// io.ReadFull, for callers happy to block on a whole packet at once (tests, simple request/response transports); a
// connection that must survive short reads drives FrameReader.Feed directly.
// If maxSize is nonzero, a remaining length beyond it fails with ErrPacketTooLarge.
func ReadPacket(r io.Reader, version ProtocolVersion, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}
	if err := header.ValidateFlags(); err != nil {
		return nil, n, err
	}
	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}
	if version == MQTT311 && header.PacketType == PacketAUTH {
		return nil, n, ErrProtocolError
	}

	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, err
		}
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, n, err
	}
	if _, err := packet.Decode(bytes.NewReader(remaining), header, version); err != nil {
		return nil, n, err
	}

	return packet, n, nil
}

// WritePacket encodes packet and writes it to w. If maxSize is nonzero the
// packet is encoded to a scratch buffer first so an oversized packet can be
// rejected without ever touching the wire.
func WritePacket(w io.Writer, packet Packet, version ProtocolVersion, maxSize uint32) (int, error) {
	if maxSize == 0 {
		return packet.Encode(w, version)
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer putBuffer(buf)

	n, err := packet.Encode(buf, version)
	if err != nil {
		return 0, err
	}
	if uint32(n) > maxSize {
		return 0, ErrPacketTooLarge
	}
	return w.Write(buf.Bytes())
}
