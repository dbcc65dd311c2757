package mqttcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTopicName(t *testing.T) {
	assert.NoError(t, ValidateTopicName("a/b/c"))
	assert.NoError(t, ValidateTopicName("/leading/slash"))
	assert.ErrorIs(t, ValidateTopicName(""), ErrEmptyTopic)
	assert.ErrorIs(t, ValidateTopicName("a/+/c"), ErrInvalidTopicName)
	assert.ErrorIs(t, ValidateTopicName("a/#"), ErrInvalidTopicName)
}

func TestValidateTopicFilter(t *testing.T) {
	valid := []string{"a/b", "+", "#", "a/+/c", "a/#", "+/+/#", "/"}
	for _, f := range valid {
		assert.NoError(t, ValidateTopicFilter(f), f)
	}

	invalid := []string{"", "a+", "a/b+/c", "a/#/c", "#/a", "a#"}
	for _, f := range invalid {
		assert.Error(t, ValidateTopicFilter(f), f)
	}
}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
		{"a/#", "a/b/c/d", true},
		{"a/#", "a", true},
		{"#", "anything/at/all", true},
		{"+", "one", true},
		{"+", "one/two", false},
		{"#", "$SYS/broker/load", false},
		{"+/monitor", "$SYS/monitor", false},
		{"$SYS/#", "$SYS/broker/load", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TopicMatch(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestIsSystemTopic(t *testing.T) {
	assert.True(t, IsSystemTopic("$SYS"))
	assert.True(t, IsSystemTopic("$SYS/broker/uptime"))
	assert.False(t, IsSystemTopic("normal/topic"))
}

func TestParseSharedSubscription(t *testing.T) {
	shared, err := ParseSharedSubscription("$share/group1/sensors/+/temp")
	require.NoError(t, err)
	require.NotNil(t, shared)
	assert.Equal(t, "group1", shared.ShareName)
	assert.Equal(t, "sensors/+/temp", shared.TopicFilter)

	plain, err := ParseSharedSubscription("ordinary/filter")
	require.NoError(t, err)
	assert.Nil(t, plain)

	_, err = ParseSharedSubscription("$share/groupwithoutfilter")
	assert.Error(t, err)

	_, err = ParseSharedSubscription("$share//filter")
	assert.Error(t, err)
}
