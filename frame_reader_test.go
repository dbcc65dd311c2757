package mqttcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePacketBytes(t *testing.T, pkt Packet, version ProtocolVersion) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, version)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestFrameReaderWholePacketOneFeed(t *testing.T) {
	raw := encodePacketBytes(t, &PublishPacket{Topic: "a/b", Payload: []byte("x")}, MQTT5)

	fr := NewFrameReader(MQTT5, 0)
	consumed, pkt, err := fr.Feed(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), consumed)
	require.NotNil(t, pkt)

	pub, ok := pkt.(*PublishPacket)
	require.True(t, ok)
	assert.Equal(t, "a/b", pub.Topic)
	assert.Equal(t, []byte("x"), pub.Payload)

	// One full packet consumed leaves the machine ready for the next type
	// byte.
	assert.Equal(t, stateAwaitType, fr.state)
}

func TestFrameReaderByteAtATime(t *testing.T) {
	raw := encodePacketBytes(t, &PublishPacket{
		Topic:    "sensors/temp",
		Payload:  bytes.Repeat([]byte{0x42}, 300),
		QoS:      1,
		PacketID: 9,
	}, MQTT5)

	fr := NewFrameReader(MQTT5, 0)
	var got Packet
	for i := 0; i < len(raw); i++ {
		consumed, pkt, err := fr.Feed(raw[i : i+1])
		require.NoError(t, err)
		assert.Equal(t, 1, consumed)
		if pkt != nil {
			assert.Equal(t, len(raw)-1, i, "packet must complete on the final byte")
			got = pkt
		}
	}

	require.NotNil(t, got)
	pub := got.(*PublishPacket)
	assert.Equal(t, uint16(9), pub.PacketID)
	assert.Len(t, pub.Payload, 300)
	assert.Equal(t, stateAwaitType, fr.state)
}

func TestFrameReaderTwoPacketsOneChunk(t *testing.T) {
	first := encodePacketBytes(t, &PingreqPacket{}, MQTT5)
	second := encodePacketBytes(t, &PublishPacket{Topic: "t", Payload: []byte("m")}, MQTT5)
	stream := append(append([]byte{}, first...), second...)

	fr := NewFrameReader(MQTT5, 0)
	packets, err := drainReader(fr, stream)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, PacketPINGREQ, packets[0].Type())
	assert.Equal(t, PacketPUBLISH, packets[1].Type())
}

func TestFrameReaderZeroLengthBody(t *testing.T) {
	fr := NewFrameReader(MQTT5, 0)
	consumed, pkt, err := fr.Feed([]byte{0xC0, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 2, consumed)
	require.NotNil(t, pkt)
	assert.Equal(t, PacketPINGREQ, pkt.Type())
	assert.Equal(t, stateAwaitType, fr.state)
}

func TestFrameReaderRejectsFiveByteRemainingLength(t *testing.T) {
	fr := NewFrameReader(MQTT5, 0)
	_, _, err := fr.Feed([]byte{0x30, 0x80, 0x80, 0x80, 0x80})
	assert.ErrorIs(t, err, ErrVarintMalformed)
	assert.Equal(t, stateAwaitType, fr.state)
}

func TestFrameReaderRejectsOversizedPacket(t *testing.T) {
	fr := NewFrameReader(MQTT5, 64)

	// Remaining length 200 > the 64-byte cap; no body byte is buffered.
	_, _, err := fr.Feed([]byte{0x30, 0xC8, 0x01})
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestFrameReaderRejectsAuthOn311(t *testing.T) {
	fr := NewFrameReader(MQTT311, 0)
	_, _, err := fr.Feed([]byte{0xF0, 0x00})
	assert.ErrorIs(t, err, ErrProtocolError)
}

func TestFrameReaderRejectsBadFlags(t *testing.T) {
	fr := NewFrameReader(MQTT5, 0)
	// PUBREL with flags 0000 instead of 0010.
	_, _, err := fr.Feed([]byte{0x60, 0x02, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrInvalidPacketFlags)
}

func TestFrameReaderRecoversAfterReset(t *testing.T) {
	fr := NewFrameReader(MQTT5, 0)
	_, _, err := fr.Feed([]byte{0x30, 0x80, 0x80, 0x80, 0x80})
	require.Error(t, err)

	raw := encodePacketBytes(t, &PingreqPacket{}, MQTT5)
	consumed, pkt, err := fr.Feed(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), consumed)
	require.NotNil(t, pkt)
}

func TestFrameReaderSplitAcrossLengthBoundary(t *testing.T) {
	raw := encodePacketBytes(t, &PublishPacket{
		Topic:   "t",
		Payload: bytes.Repeat([]byte{0x01}, 200),
	}, MQTT5)

	// Remaining length here needs two VLI bytes; split right between them.
	fr := NewFrameReader(MQTT5, 0)
	consumed, pkt, err := fr.Feed(raw[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, consumed)
	assert.Nil(t, pkt)

	consumed2, pkt, err := fr.Feed(raw[2:])
	require.NoError(t, err)
	assert.Equal(t, len(raw)-2, consumed2)
	require.NotNil(t, pkt)
}
