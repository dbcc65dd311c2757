package localrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqttcore/mqttcore"
)

type capture struct {
	msgs []*mqttcore.Message
	subs []mqttcore.Subscription
}

func (c *capture) deliver(msg *mqttcore.Message, sub mqttcore.Subscription) {
	c.msgs = append(c.msgs, msg)
	c.subs = append(c.subs, sub)
}

func TestRouterPublishMatchesFilters(t *testing.T) {
	r := New()
	var got capture

	code := r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "a/+", QoS: 1}, got.deliver)
	assert.Equal(t, mqttcore.ReasonGrantedQoS1, code)

	r.Publish("pub", &mqttcore.Message{Topic: "a/b", Payload: []byte("x")})
	r.Publish("pub", &mqttcore.Message{Topic: "a/b/c", Payload: []byte("y")})

	require.Len(t, got.msgs, 1)
	assert.Equal(t, "a/b", got.msgs[0].Topic)
}

func TestRouterResubscribeReplaces(t *testing.T) {
	r := New()
	var got capture

	r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "t", QoS: 0}, got.deliver)
	r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "t", QoS: 2}, got.deliver)
	assert.Equal(t, 1, r.SubscriberCount())

	r.Publish("pub", &mqttcore.Message{Topic: "t"})
	require.Len(t, got.subs, 1)
	assert.Equal(t, byte(2), got.subs[0].QoS)
}

func TestRouterNoLocalSuppression(t *testing.T) {
	r := New()
	var got capture

	r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "t", NoLocal: true}, got.deliver)

	r.Publish("c1", &mqttcore.Message{Topic: "t"})
	assert.Empty(t, got.msgs, "publisher must not hear its own message")

	r.Publish("c2", &mqttcore.Message{Topic: "t"})
	assert.Len(t, got.msgs, 1)
}

func TestRouterUnsubscribeAndDetach(t *testing.T) {
	r := New()
	var got capture

	r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "a"}, got.deliver)
	r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "b"}, got.deliver)
	r.Subscribe("c2", mqttcore.Subscription{TopicFilter: "a"}, got.deliver)

	assert.True(t, r.Unsubscribe("c1", "a"))
	assert.False(t, r.Unsubscribe("c1", "a"))
	assert.Equal(t, 2, r.SubscriberCount())

	r.Detach("c1")
	assert.Equal(t, 1, r.SubscriberCount())
}

func TestRouterRetained(t *testing.T) {
	r := New()

	r.Publish("pub", &mqttcore.Message{Topic: "status/a", Payload: []byte("1"), Retain: true})
	r.Publish("pub", &mqttcore.Message{Topic: "status/b", Payload: []byte("2"), Retain: true})
	r.Publish("pub", &mqttcore.Message{Topic: "other", Payload: []byte("3"), Retain: true})

	matched := r.Retained("status/#")
	assert.Len(t, matched, 2)

	// An empty retained payload clears the slot.
	r.Publish("pub", &mqttcore.Message{Topic: "status/a", Retain: true})
	assert.Len(t, r.Retained("status/#"), 1)
}

func TestRouterSharedSubscriptionRoundRobin(t *testing.T) {
	r := New()
	var first, second capture

	r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "$share/g/jobs"}, first.deliver)
	r.Subscribe("c2", mqttcore.Subscription{TopicFilter: "$share/g/jobs"}, second.deliver)

	for i := 0; i < 4; i++ {
		r.Publish("pub", &mqttcore.Message{Topic: "jobs"})
	}

	// Each message lands on exactly one group member, alternating.
	assert.Equal(t, 4, len(first.msgs)+len(second.msgs))
	assert.Len(t, first.msgs, 2)
	assert.Len(t, second.msgs, 2)
}

func TestRouterSharedSubscriptionMalformed(t *testing.T) {
	r := New()
	code := r.Subscribe("c1", mqttcore.Subscription{TopicFilter: "$share/"}, func(*mqttcore.Message, mqttcore.Subscription) {})
	assert.True(t, code.IsError())
}
