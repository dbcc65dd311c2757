package mqttcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWillFromConnect(t *testing.T) {
	connect := &ConnectPacket{
		ClientID:    "c",
		CleanStart:  true,
		WillFlag:    true,
		WillTopic:   "dead/c",
		WillPayload: []byte("gone"),
		WillQoS:     1,
		WillRetain:  true,
	}

	will := WillFromConnect(connect)
	require.NotNil(t, will)
	assert.Equal(t, "dead/c", will.Topic)
	assert.Equal(t, []byte("gone"), will.Payload)
	assert.Equal(t, byte(1), will.QoS)
	assert.True(t, will.Retain)

	assert.Nil(t, WillFromConnect(&ConnectPacket{ClientID: "c", CleanStart: true}))
}

func TestWillToMessage(t *testing.T) {
	will := &WillMessage{Topic: "w", Payload: []byte("p"), QoS: 2, Retain: true}
	msg := will.ToMessage()
	assert.Equal(t, "w", msg.Topic)
	assert.Equal(t, byte(2), msg.QoS)
	assert.True(t, msg.Retain)
}

func TestWillValidate(t *testing.T) {
	assert.NoError(t, (&WillMessage{Topic: "ok"}).Validate())
	assert.Error(t, (&WillMessage{Topic: ""}).Validate())
	assert.Error(t, (&WillMessage{Topic: "t", QoS: 3}).Validate())
}

func TestPendingWillDelay(t *testing.T) {
	will := &WillMessage{Topic: "w", DelayInterval: 3600}
	pending := NewPendingWill("c", will)

	assert.False(t, pending.IsReady())
	assert.Greater(t, pending.TimeUntilPublish(), 59*time.Minute)

	immediate := NewPendingWill("c", &WillMessage{Topic: "w"})
	assert.True(t, immediate.IsReady())
}
