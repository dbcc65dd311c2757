package mqttcore

import "bytes"

type frameState int

const (
	stateAwaitType frameState = iota
	stateAwaitLen
	stateAwaitBody
)

// FrameReader decodes control packets from a byte stream that may only
// deliver a few bytes at a time (a non-blocking transport Read, a TLS
// record boundary mid-packet). Feed never blocks and never panics: a
// short read simply leaves the machine in the same state, waiting for
// more bytes on the next call. ReadPacket remains as a blocking wrapper
// for callers that can afford io.ReadFull semantics.
type FrameReader struct {
	version ProtocolVersion
	maxSize uint32

	state frameState

	typeAndFlags byte

	lenBytes    [4]byte
	lenByteIdx  int
	remaining   uint32
	lenShift    uint32

	body    bytes.Buffer
	bodyLen uint32
}

// NewFrameReader returns a FrameReader for the given protocol version. A
// nonzero maxSize rejects a remaining length beyond it with ErrPacketTooLarge
// before a single body byte is buffered.
func NewFrameReader(version ProtocolVersion, maxSize uint32) *FrameReader {
	return &FrameReader{version: version, maxSize: maxSize}
}

// Reset clears all partial-packet state, discarding anything fed so far.
// Used after a decode error, when the only safe recovery is to close the
// connection but the reader might be pooled and reused.
func (fr *FrameReader) Reset() {
	fr.state = stateAwaitType
	fr.lenByteIdx = 0
	fr.remaining = 0
	fr.lenShift = 0
	fr.body.Reset()
	fr.bodyLen = 0
}

// Feed advances the state machine by the bytes in p. It returns the number
// of bytes consumed (always len(p) unless a packet completed mid-slice or
// an error was hit), a decoded Packet when one completes, and an error for
// a malformed stream. On a non-nil error the caller must close the
// connection; Feed does not attempt to resynchronize on garbage input.
func (fr *FrameReader) Feed(p []byte) (consumed int, pkt Packet, err error) {
	for consumed < len(p) {
		switch fr.state {
		case stateAwaitType:
			fr.typeAndFlags = p[consumed]
			consumed++
			fr.state = stateAwaitLen
			fr.lenByteIdx = 0
			fr.remaining = 0
			fr.lenShift = 0

		case stateAwaitLen:
			b := p[consumed]
			consumed++
			fr.lenBytes[fr.lenByteIdx] = b
			fr.lenByteIdx++

			fr.remaining += uint32(b&varintValueMask) << fr.lenShift
			fr.lenShift += 7

			if b&varintContinueBit == 0 {
				if fr.remaining > maxVarint {
					fr.Reset()
					return consumed, nil, ErrVarintTooLarge
				}
				if fr.maxSize > 0 && fr.remaining > fr.maxSize {
					fr.Reset()
					return consumed, nil, ErrPacketTooLarge
				}
				fr.bodyLen = fr.remaining
				fr.body.Reset()
				if fr.bodyLen == 0 {
					pkt, err = fr.assemble()
					fr.Reset()
					return consumed, pkt, err
				}
				fr.state = stateAwaitBody
				break
			}

			if fr.lenByteIdx == 4 {
				fr.Reset()
				return consumed, nil, ErrVarintMalformed
			}

		case stateAwaitBody:
			need := int(fr.bodyLen) - fr.body.Len()
			take := len(p) - consumed
			if take > need {
				take = need
			}
			fr.body.Write(p[consumed : consumed+take])
			consumed += take

			if fr.body.Len() == int(fr.bodyLen) {
				pkt, err = fr.assemble()
				fr.Reset()
				return consumed, pkt, err
			}
			return consumed, nil, nil
		}
	}
	return consumed, nil, nil
}

func (fr *FrameReader) assemble() (Packet, error) {
	header := FixedHeader{
		PacketType:      PacketType(fr.typeAndFlags >> 4),
		Flags:           fr.typeAndFlags & 0x0F,
		RemainingLength: fr.bodyLen,
	}
	if !header.PacketType.Valid() {
		return nil, ErrInvalidPacketType
	}
	if err := header.ValidateFlags(); err != nil {
		return nil, err
	}
	if fr.version == MQTT311 && header.PacketType == PacketAUTH {
		return nil, ErrProtocolError
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, err
	}
	if _, err := packet.Decode(bytes.NewReader(fr.body.Bytes()), header, fr.version); err != nil {
		return nil, err
	}
	return packet, nil
}
