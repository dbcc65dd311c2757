package mqttcore

import "time"

// QoS1Tracker and QoS2Tracker add retry-timer bookkeeping on top of
// InFlightStore. The store owns the packet-to-state mapping and its
// ordering; these trackers just decide *when* a still-tracked entry is
// due for retransmission.
type retryPolicy struct {
	retryTimeout time.Duration
	maxRetries   int
}

func newRetryPolicy(retryTimeout time.Duration, maxRetries int) retryPolicy {
	return retryPolicy{retryTimeout: retryTimeout, maxRetries: maxRetries}
}

// ShouldRetry reports whether entry is due for retransmission: it has been
// outstanding longer than the retry timeout and hasn't exhausted its retry
// budget.
func (p retryPolicy) ShouldRetry(entry *InFlightEntry) bool {
	if entry.RetryCount >= p.maxRetries {
		return false
	}
	return time.Since(entry.SentAt) > p.retryTimeout
}

// QoS1Tracker decides retransmission timing for outbound QoS 1 PUBLISH
// packets tracked in an InFlightStore.
type QoS1Tracker struct {
	store  *InFlightStore
	policy retryPolicy
}

func NewQoS1Tracker(store *InFlightStore, retryTimeout time.Duration, maxRetries int) *QoS1Tracker {
	return &QoS1Tracker{store: store, policy: newRetryPolicy(retryTimeout, maxRetries)}
}

// PendingRetries returns outbound QoS 1 entries due for retransmission,
// marking each as retried in the process. Entries awaiting SUBACK/UNSUBACK
// are not this tracker's business.
func (t *QoS1Tracker) PendingRetries() []*InFlightEntry {
	var pending []*InFlightEntry
	for _, e := range t.store.Ordered(InFlightOutbound) {
		if e.ExpectedAck != PacketPUBACK {
			continue
		}
		if t.policy.ShouldRetry(e) {
			t.store.MarkRetry(InFlightOutbound, e.PacketID)
			pending = append(pending, e)
		}
	}
	return pending
}

// QoS2Tracker decides retransmission timing for outbound QoS 2 PUBLISH/
// PUBREL packets tracked in an InFlightStore.
type QoS2Tracker struct {
	store  *InFlightStore
	policy retryPolicy
}

func NewQoS2Tracker(store *InFlightStore, retryTimeout time.Duration, maxRetries int) *QoS2Tracker {
	return &QoS2Tracker{store: store, policy: newRetryPolicy(retryTimeout, maxRetries)}
}

// PendingRetries returns outbound QoS 2 entries due for retransmission,
// whether still awaiting the PUBREC or the PUBCOMP.
func (t *QoS2Tracker) PendingRetries() []*InFlightEntry {
	var pending []*InFlightEntry
	for _, e := range t.store.Ordered(InFlightOutbound) {
		if e.ExpectedAck != PacketPUBREC && e.ExpectedAck != PacketPUBCOMP {
			continue
		}
		if t.policy.ShouldRetry(e) {
			t.store.MarkRetry(InFlightOutbound, e.PacketID)
			pending = append(pending, e)
		}
	}
	return pending
}
