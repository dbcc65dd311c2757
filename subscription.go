package mqttcore

import "sync"

// SubscriptionTable is the set of topic filters one Session is subscribed
// to: a plain filter -> Subscription map, no cross-client indexing or
// topic trie. Matching incoming PUBLISH topics against many clients'
// filters at once is a broker concern, kept separately in
// internal/localrouter.
type SubscriptionTable struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewSubscriptionTable returns an empty subscription table.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{subs: make(map[string]Subscription)}
}

// Add records or replaces the subscription for sub.TopicFilter, reporting
// whether this is a brand new filter (as opposed to an update of an
// existing one), which feeds RetainHandling == 1 semantics.
func (t *SubscriptionTable) Add(sub Subscription) (isNew bool, err error) {
	if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, existed := t.subs[sub.TopicFilter]
	t.subs[sub.TopicFilter] = sub
	return !existed, nil
}

// Remove deletes the subscription for filter, reporting whether one
// existed.
func (t *SubscriptionTable) Remove(filter string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subs[filter]; !ok {
		return false
	}
	delete(t.subs, filter)
	return true
}

// Get returns the subscription for filter, if any.
func (t *SubscriptionTable) Get(filter string) (Subscription, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sub, ok := t.subs[filter]
	return sub, ok
}

// All returns every subscription currently held, in no particular order.
func (t *SubscriptionTable) All() []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		result = append(result, sub)
	}
	return result
}

// Match returns every held subscription whose filter matches topic.
func (t *SubscriptionTable) Match(topic string) []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []Subscription
	for filter, sub := range t.subs {
		if TopicMatch(filter, topic) {
			result = append(result, sub)
		}
	}
	return result
}

// Len returns the number of held subscriptions.
func (t *SubscriptionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// ShouldSendRetained reports whether a retained message should be sent for
// a subscription with the given RetainHandling option.
// 0 = send always, 1 = send only for a brand new subscription, 2 = never.
func ShouldSendRetained(retainHandling byte, isNewSubscription bool) bool {
	switch retainHandling {
	case 0:
		return true
	case 1:
		return isNewSubscription
	case 2:
		return false
	default:
		return true
	}
}

// DeliveryRetainFlag determines the retain flag to set on a message as
// delivered to a given subscription: preserved verbatim if
// RetainAsPublish is set, false otherwise.
func DeliveryRetainFlag(sub Subscription, originalRetain bool) bool {
	if sub.RetainAsPublish {
		return originalRetain
	}
	return false
}
