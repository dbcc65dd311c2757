package mqttcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribePacketEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		version ProtocolVersion
		packet  SubscribePacket
	}{
		{
			name:    "single filter v5",
			version: MQTT5,
			packet: SubscribePacket{
				PacketID:      10,
				Subscriptions: []Subscription{{TopicFilter: "a/+/c", QoS: 1}},
			},
		},
		{
			name:    "multiple filters v5 options",
			version: MQTT5,
			packet: SubscribePacket{
				PacketID: 11,
				Subscriptions: []Subscription{
					{TopicFilter: "x/#", QoS: 2, NoLocal: true, RetainAsPublish: true, RetainHandling: 1},
					{TopicFilter: "y", QoS: 0},
				},
			},
		},
		{
			name:    "single filter v311",
			version: MQTT311,
			packet: SubscribePacket{
				PacketID:      12,
				Subscriptions: []Subscription{{TopicFilter: "t", QoS: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := roundTrip(t, &tt.packet, tt.version).(*SubscribePacket)
			assert.Equal(t, tt.packet.PacketID, decoded.PacketID)
			assert.Equal(t, tt.packet.Subscriptions, decoded.Subscriptions)
		})
	}
}

func TestSubscribePacketValidate(t *testing.T) {
	noID := &SubscribePacket{Subscriptions: []Subscription{{TopicFilter: "t"}}}
	assert.ErrorIs(t, noID.Validate(), ErrInvalidPacketID)

	empty := &SubscribePacket{PacketID: 1}
	assert.ErrorIs(t, empty.Validate(), ErrProtocolViolation)

	badQoS := &SubscribePacket{PacketID: 1, Subscriptions: []Subscription{{TopicFilter: "t", QoS: 3}}}
	assert.ErrorIs(t, badQoS.Validate(), ErrInvalidQoS)
}

func TestSubackPacketEncodeDecode(t *testing.T) {
	src := &SubackPacket{
		PacketID:    10,
		ReasonCodes: []ReasonCode{ReasonGrantedQoS0, ReasonGrantedQoS1, ReasonGrantedQoS2, ReasonNotAuthorized},
	}

	t.Run("v5 preserves codes", func(t *testing.T) {
		decoded := roundTrip(t, src, MQTT5).(*SubackPacket)
		assert.Equal(t, src.ReasonCodes, decoded.ReasonCodes)
	})

	t.Run("v311 collapses failures to 0x80", func(t *testing.T) {
		raw := encodePacketBytes(t, src, MQTT311)
		assert.Equal(t, byte(0x80), raw[len(raw)-1])
	})
}

func TestUnsubscribePacketEncodeDecode(t *testing.T) {
	src := &UnsubscribePacket{PacketID: 9, TopicFilters: []string{"a/b", "c/#"}}

	for _, version := range []ProtocolVersion{MQTT311, MQTT5} {
		decoded := roundTrip(t, src, version).(*UnsubscribePacket)
		assert.Equal(t, src.PacketID, decoded.PacketID)
		assert.Equal(t, src.TopicFilters, decoded.TopicFilters)
	}
}

func TestUnsubackPacketEncodeDecode(t *testing.T) {
	t.Run("v5 carries reason codes", func(t *testing.T) {
		src := &UnsubackPacket{PacketID: 9, ReasonCodes: []ReasonCode{ReasonSuccess, ReasonNoSubscriptionExisted}}
		decoded := roundTrip(t, src, MQTT5).(*UnsubackPacket)
		assert.Equal(t, src.ReasonCodes, decoded.ReasonCodes)
	})

	t.Run("v311 carries only the packet id", func(t *testing.T) {
		src := &UnsubackPacket{PacketID: 9, ReasonCodes: []ReasonCode{ReasonSuccess}}
		raw := encodePacketBytes(t, src, MQTT311)
		assert.Equal(t, []byte{0xB0, 0x02, 0x00, 0x09}, raw)
	})
}
