package mqttcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightPutGetRemove(t *testing.T) {
	s := NewInFlightStore()
	msg := &Message{Topic: "t", Payload: []byte("m"), QoS: 1}

	entry := s.Put(InFlightOutbound, 1, msg, 1)
	require.NotNil(t, entry)
	assert.Equal(t, uint16(1), entry.PacketID)

	got, ok := s.Get(InFlightOutbound, 1)
	require.True(t, ok)
	assert.Same(t, entry, got)

	// Insert then remove leaves the store unchanged.
	assert.True(t, s.Remove(InFlightOutbound, 1))
	assert.Equal(t, 0, s.Len(InFlightOutbound))
	_, ok = s.Get(InFlightOutbound, 1)
	assert.False(t, ok)
	assert.False(t, s.Remove(InFlightOutbound, 1))
}

func TestInFlightPutIsIdempotentPerKey(t *testing.T) {
	s := NewInFlightStore()
	first := s.Put(InFlightOutbound, 1, &Message{Topic: "a"}, 1)
	second := s.Put(InFlightOutbound, 1, &Message{Topic: "b"}, 1)

	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Len(InFlightOutbound))
}

func TestInFlightKindsAreIndependent(t *testing.T) {
	s := NewInFlightStore()
	s.Put(InFlightOutbound, 1, &Message{Topic: "out"}, 2)
	s.Put(InFlightInbound, 1, &Message{Topic: "in"}, 2)

	assert.Equal(t, 1, s.Len(InFlightOutbound))
	assert.Equal(t, 1, s.Len(InFlightInbound))

	out, ok := s.Get(InFlightOutbound, 1)
	require.True(t, ok)
	assert.Equal(t, "out", out.Message.Topic)
}

func TestInFlightOrderedPreservesInsertionOrder(t *testing.T) {
	s := NewInFlightStore()
	for _, id := range []uint16{5, 2, 9, 1} {
		s.Put(InFlightOutbound, id, &Message{Topic: "t"}, 1)
	}

	// Removing from the middle must not disturb the relative order.
	s.Remove(InFlightOutbound, 2)

	ordered := s.Ordered(InFlightOutbound)
	ids := make([]uint16, 0, len(ordered))
	for _, e := range ordered {
		ids = append(ids, e.PacketID)
	}
	assert.Equal(t, []uint16{5, 9, 1}, ids)
}

func TestInFlightPutSubscribeAndUnsubscribe(t *testing.T) {
	s := NewInFlightStore()

	sub := s.PutSubscribe(1, []Subscription{{TopicFilter: "a/+", QoS: 1}})
	assert.Equal(t, PacketSUBACK, sub.ExpectedAck)
	assert.Equal(t, InFlightOutbound, sub.Kind)
	assert.Nil(t, sub.Message)

	unsub := s.PutUnsubscribe(2, []string{"a/+"})
	assert.Equal(t, PacketUNSUBACK, unsub.ExpectedAck)
	assert.Equal(t, []string{"a/+"}, unsub.Filters)

	// Subscribe/unsubscribe entries share the outbound ordering with
	// publishes, since reconnect replay must preserve it across kinds.
	s.Put(InFlightOutbound, 3, &Message{Topic: "t"}, 1)
	ordered := s.Ordered(InFlightOutbound)
	require.Len(t, ordered, 3)
	assert.Equal(t, uint16(1), ordered[0].PacketID)
	assert.Equal(t, uint16(3), ordered[2].PacketID)
}

func TestInFlightMarkRetry(t *testing.T) {
	s := NewInFlightStore()
	s.Put(InFlightOutbound, 1, &Message{Topic: "t"}, 1)

	s.MarkRetry(InFlightOutbound, 1)
	s.MarkRetry(InFlightOutbound, 1)

	entry, ok := s.Get(InFlightOutbound, 1)
	require.True(t, ok)
	assert.True(t, entry.DUP)
	assert.Equal(t, 2, entry.RetryCount)
}
