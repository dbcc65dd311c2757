package mqttcore

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("mqttcore: invalid topic name")
	ErrInvalidTopicFilter = errors.New("mqttcore: invalid topic filter")
	ErrEmptyTopic         = errors.New("mqttcore: topic cannot be empty")
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = '+'
	multiLevelWildcard  = '#'
)

// ValidateTopicName validates a topic name used in PUBLISH: no wildcards,
// valid UTF-8, no embedded null.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}
	for _, r := range topic {
		if r == 0 || r == singleLevelWildcard || r == multiLevelWildcard {
			return ErrInvalidTopicName
		}
	}
	return nil
}

// ValidateTopicFilter validates a topic filter used in SUBSCRIBE: wildcards
// are allowed but must each occupy a whole level, and '#' may only appear
// as the final level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}
	if !utf8.ValidString(filter) {
		return ErrInvalidTopicFilter
	}
	for _, r := range filter {
		if r == 0 {
			return ErrInvalidTopicFilter
		}
	}

	levels := strings.Split(filter, string(topicSeparator))
	for i, level := range levels {
		if strings.Contains(level, string(singleLevelWildcard)) && level != string(singleLevelWildcard) {
			return ErrInvalidTopicFilter
		}
		if strings.Contains(level, string(multiLevelWildcard)) {
			if level != string(multiLevelWildcard) || i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}
	return nil
}

// TopicMatch reports whether topic matches filter, honoring the MQTT
// wildcard rules and the special case that $-prefixed topics never match
// a wildcard at the first level.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if topic[0] == '$' && (filter[0] == singleLevelWildcard || filter[0] == multiLevelWildcard) {
		return false
	}
	return matchTopicNoAlloc(filter, topic)
}

// matchTopicNoAlloc walks filter and topic level by level without
// allocating a slice per call.
func matchTopicNoAlloc(filter, topic string) bool {
	fi, ti := 0, 0
	flen, tlen := len(filter), len(topic)

	for fi < flen {
		fstart := fi
		for fi < flen && filter[fi] != topicSeparator {
			fi++
		}
		flevel := filter[fstart:fi]

		if flevel == "#" {
			return true
		}

		if ti >= tlen {
			return false
		}

		tstart := ti
		for ti < tlen && topic[ti] != topicSeparator {
			ti++
		}
		tlevel := topic[tstart:ti]

		if flevel != "+" && flevel != tlevel {
			return false
		}

		if fi < flen {
			fi++
		}
		if ti < tlen {
			ti++
		}
	}

	return ti >= tlen
}

// IsSystemTopic reports whether topic is a $SYS topic.
func IsSystemTopic(topic string) bool {
	return strings.HasPrefix(topic, "$SYS/") || topic == "$SYS"
}

// SharedSubscription is a parsed $share/{Group}/{Filter} subscription.
type SharedSubscription struct {
	ShareName   string
	TopicFilter string
}

const sharedSubscriptionPrefix = "$share/"

// ParseSharedSubscription parses filter as a shared subscription. It
// returns (nil, nil) if filter is not a shared subscription at all.
func ParseSharedSubscription(filter string) (*SharedSubscription, error) {
	if !strings.HasPrefix(filter, sharedSubscriptionPrefix) {
		return nil, nil
	}

	rest := filter[len(sharedSubscriptionPrefix):]
	idx := strings.IndexByte(rest, topicSeparator)
	if idx <= 0 {
		return nil, ErrInvalidTopicFilter
	}

	shareName := rest[:idx]
	topicFilter := rest[idx+1:]
	if shareName == "" || topicFilter == "" {
		return nil, ErrInvalidTopicFilter
	}
	if err := ValidateTopicFilter(topicFilter); err != nil {
		return nil, err
	}

	return &SharedSubscription{ShareName: shareName, TopicFilter: topicFilter}, nil
}
