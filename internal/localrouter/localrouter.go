// Package localrouter is the in-process message router a Server plugs in
// to move messages between its own connections: wildcard matching across
// clients, NoLocal suppression, shared-subscription group balancing, and
// the retained-message store. It is a single-process convenience, not a
// distributed broker.
package localrouter

import (
	"sync"

	"github.com/mqttcore/mqttcore"
)

type subscriber struct {
	clientID string
	sub      mqttcore.Subscription
	deliver  mqttcore.DeliveryFunc

	// shareGroup is non-empty for $share/<group>/<filter> subscriptions;
	// matchFilter is the filter with the share prefix stripped.
	shareGroup  string
	matchFilter string
}

// Router implements mqttcore.Router over an in-memory subscription list
// and retained store. In-flight set sizes are small enough in practice
// that linear matching beats maintaining a trie.
type Router struct {
	mu       sync.RWMutex
	subs     []*subscriber
	retained map[string]*mqttcore.Message

	// rr tracks the round-robin cursor per shared-subscription group.
	rr map[string]int
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		retained: make(map[string]*mqttcore.Message),
		rr:       make(map[string]int),
	}
}

// Subscribe registers sub for clientID, replacing any prior subscription
// with the same filter. The granted QoS is whatever was requested; a
// malformed shared-subscription filter is refused.
func (r *Router) Subscribe(clientID string, sub mqttcore.Subscription, deliver mqttcore.DeliveryFunc) mqttcore.ReasonCode {
	entry := &subscriber{
		clientID:    clientID,
		sub:         sub,
		deliver:     deliver,
		matchFilter: sub.TopicFilter,
	}
	shared, err := mqttcore.ParseSharedSubscription(sub.TopicFilter)
	if err != nil {
		return mqttcore.ReasonSharedSubsNotSupported
	}
	if shared != nil {
		entry.shareGroup = shared.ShareName
		entry.matchFilter = shared.TopicFilter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.subs {
		if existing.clientID == clientID && existing.sub.TopicFilter == sub.TopicFilter {
			r.subs[i] = entry
			return mqttcore.ReasonCode(sub.QoS)
		}
	}
	r.subs = append(r.subs, entry)
	return mqttcore.ReasonCode(sub.QoS)
}

// Unsubscribe removes clientID's subscription for filter.
func (r *Router) Unsubscribe(clientID, filter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.subs {
		if existing.clientID == clientID && existing.sub.TopicFilter == filter {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Detach removes every subscription held by clientID.
func (r *Router) Detach(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.subs[:0]
	for _, existing := range r.subs {
		if existing.clientID != clientID {
			kept = append(kept, existing)
		}
	}
	r.subs = kept
}

// Publish fans msg out to every matching subscriber. Within one shared
// group only a single subscriber receives each message, rotated
// round-robin; retained messages are stored (or cleared for an empty
// payload) before delivery.
func (r *Router) Publish(sourceClientID string, msg *mqttcore.Message) {
	if msg.Retain {
		r.storeRetained(msg)
	}

	r.mu.Lock()
	var direct []*subscriber
	groups := make(map[string][]*subscriber)
	for _, s := range r.subs {
		if !mqttcore.TopicMatch(s.matchFilter, msg.Topic) {
			continue
		}
		if s.sub.NoLocal && s.clientID == sourceClientID {
			continue
		}
		if s.shareGroup != "" {
			key := s.shareGroup + "/" + s.matchFilter
			groups[key] = append(groups[key], s)
			continue
		}
		direct = append(direct, s)
	}

	var elected []*subscriber
	for key, members := range groups {
		idx := r.rr[key] % len(members)
		r.rr[key] = idx + 1
		elected = append(elected, members[idx])
	}
	r.mu.Unlock()

	// Delivery happens outside the lock: a deliver callback may publish
	// again (fan-in patterns) and must not deadlock.
	for _, s := range direct {
		s.deliver(msg, s.sub)
	}
	for _, s := range elected {
		s.deliver(msg, s.sub)
	}
}

func (r *Router) storeRetained(msg *mqttcore.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(msg.Payload) == 0 {
		delete(r.retained, msg.Topic)
		return
	}
	r.retained[msg.Topic] = msg.Clone()
}

// Retained returns the retained messages whose topics match filter.
func (r *Router) Retained(filter string) []*mqttcore.Message {
	match := filter
	if shared, err := mqttcore.ParseSharedSubscription(filter); err == nil && shared != nil {
		match = shared.TopicFilter
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mqttcore.Message
	for topic, msg := range r.retained {
		if mqttcore.TopicMatch(match, topic) {
			result = append(result, msg.Clone())
		}
	}
	return result
}

// SubscriberCount reports how many subscriptions are registered, for
// tests and introspection.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
