package mqttcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() (*QoSEngine, *InFlightStore) {
	store := NewInFlightStore()
	return NewQoSEngine(store), store
}

func TestQoS1PublisherFlow(t *testing.T) {
	engine, store := newTestEngine()
	msg := &Message{Topic: "t", Payload: []byte("m"), QoS: 1}

	entry := engine.Send(1, msg, 1)
	assert.Equal(t, qosStateAwaitingPuback, entry.State)
	assert.Equal(t, 1, store.Len(InFlightOutbound))

	_, ok := engine.HandlePuback(1)
	assert.True(t, ok)
	assert.Equal(t, 0, store.Len(InFlightOutbound))

	// A second PUBACK for the same id is a stray.
	_, ok = engine.HandlePuback(1)
	assert.False(t, ok)
}

func TestQoS2PublisherFlow(t *testing.T) {
	engine, store := newTestEngine()
	msg := &Message{Topic: "t", Payload: []byte("m"), QoS: 2}

	entry := engine.Send(7, msg, 2)
	assert.Equal(t, qosStateAwaitingPubrec, entry.State)

	// PUBCOMP before PUBREC is out of order and ignored.
	_, ok := engine.HandlePubcomp(7)
	assert.False(t, ok)

	_, ok = engine.HandlePubrec(7)
	require.True(t, ok)
	assert.Equal(t, qosStateAwaitingPubcomp, entry.State)
	assert.Equal(t, 1, store.Len(InFlightOutbound), "entry survives until PUBCOMP")

	_, ok = engine.HandlePubcomp(7)
	assert.True(t, ok)
	assert.Equal(t, 0, store.Len(InFlightOutbound))
}

func TestQoSAcksForWrongQoSAreStray(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Send(1, &Message{Topic: "t", QoS: 2}, 2)

	// A PUBACK for a QoS 2 flow must not complete it.
	_, ok := engine.HandlePuback(1)
	assert.False(t, ok)
}

func TestQoS1SubscriberAlwaysDelivers(t *testing.T) {
	engine, _ := newTestEngine()
	pkt := &PublishPacket{Topic: "t", Payload: []byte("m"), QoS: 1, PacketID: 3}

	assert.True(t, engine.ReceivePublish(pkt))

	// At-least-once: the same id delivered again reaches the handler again.
	dup := &PublishPacket{Topic: "t", Payload: []byte("m"), QoS: 1, PacketID: 3, DUP: true}
	assert.True(t, engine.ReceivePublish(dup))
}

func TestQoS2SubscriberSuppressesDuplicates(t *testing.T) {
	engine, _ := newTestEngine()
	pkt := &PublishPacket{Topic: "t", Payload: []byte("m"), QoS: 2, PacketID: 7}

	// First arrival delivers; the retransmission before PUBREC does not.
	assert.True(t, engine.ReceivePublish(pkt))
	assert.False(t, engine.ReceivePublish(pkt))
	assert.False(t, engine.ReceivePublish(pkt))

	// PUBREL clears the dedup entry, so the id becomes reusable.
	assert.True(t, engine.ReceivePubrel(7))
	assert.True(t, engine.ReceivePublish(pkt))
}

func TestQoS2SubscriberPubrelIsIdempotent(t *testing.T) {
	engine, store := newTestEngine()
	engine.ReceivePublish(&PublishPacket{Topic: "t", QoS: 2, PacketID: 9})

	assert.True(t, engine.ReceivePubrel(9))
	assert.True(t, engine.ReceivePubrel(9), "a retransmitted PUBREL still wants its PUBCOMP")
	assert.Equal(t, 0, store.Len(InFlightInbound))
}

func TestQoSPendingOutboundOrder(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Send(3, &Message{Topic: "a", QoS: 1}, 1)
	engine.Send(1, &Message{Topic: "b", QoS: 2}, 2)
	engine.Send(2, &Message{Topic: "c", QoS: 1}, 1)

	pending := engine.PendingOutbound()
	require.Len(t, pending, 3)
	assert.Equal(t, uint16(3), pending[0].PacketID)
	assert.Equal(t, uint16(1), pending[1].PacketID)
	assert.Equal(t, uint16(2), pending[2].PacketID)
}
