package mqttcore

import (
	"sync"
	"time"
)

// InFlightKind distinguishes the two independent packet-id spaces an
// in-flight store tracks: packets this endpoint originated (awaiting the
// peer's ack) and packets a peer originated that this endpoint is still
// processing (QoS 2 PUBLISH awaiting a locally-generated PUBREL).
type InFlightKind int

const (
	InFlightOutbound InFlightKind = iota
	InFlightInbound
)

// InFlightEntry is one packet tracked by InFlightStore. Seq records the
// insertion order so a reconnect can replay outbound entries in the exact
// order they were originally sent. ExpectedAck names the packet type that
// terminates (or, for PUBREC, advances) the handshake: PUBACK, PUBREC,
// PUBCOMP, SUBACK or UNSUBACK. Exactly one of Message, Subs or Filters is
// populated, matching the packet the entry stands for.
type InFlightEntry struct {
	PacketID    uint16
	Kind        InFlightKind
	ExpectedAck PacketType
	Message     *Message
	Subs        []Subscription
	Filters     []string
	QoS         byte
	State       byte
	DUP         bool
	SentAt      time.Time
	RetryCount  int
	Seq         uint64
}

type inflightKey struct {
	id   uint16
	kind InFlightKind
}

// InFlightStore is an ordered, multi-indexed collection of packets
// currently mid-handshake: one insertion-order log plus a lookup map
// maintained in lock-step. A bare map keyed by packet id would lose the
// order and so could not support correct reconnect replay. QoS1Tracker
// and QoS2Tracker are thin retry-timer bookkeeping layered on top of this
// store, not a replacement for it.
type InFlightStore struct {
	mu      sync.Mutex
	order   []*InFlightEntry
	byKey   map[inflightKey]*InFlightEntry
	nextSeq uint64
}

// NewInFlightStore returns an empty store.
func NewInFlightStore() *InFlightStore {
	return &InFlightStore{
		byKey: make(map[inflightKey]*InFlightEntry),
	}
}

// Put records a new in-flight packet, or returns the existing entry
// unchanged if (kind, packetID) is already tracked.
func (s *InFlightStore) Put(kind InFlightKind, packetID uint16, msg *Message, qos byte) *InFlightEntry {
	return s.insert(&InFlightEntry{
		PacketID: packetID,
		Kind:     kind,
		Message:  msg,
		QoS:      qos,
	})
}

// PutSubscribe records an outbound SUBSCRIBE awaiting its SUBACK. The
// subscriptions ride on the entry so a reconnect can rebuild the packet.
func (s *InFlightStore) PutSubscribe(packetID uint16, subs []Subscription) *InFlightEntry {
	return s.insert(&InFlightEntry{
		PacketID:    packetID,
		Kind:        InFlightOutbound,
		ExpectedAck: PacketSUBACK,
		Subs:        subs,
	})
}

// PutUnsubscribe records an outbound UNSUBSCRIBE awaiting its UNSUBACK.
func (s *InFlightStore) PutUnsubscribe(packetID uint16, filters []string) *InFlightEntry {
	return s.insert(&InFlightEntry{
		PacketID:    packetID,
		Kind:        InFlightOutbound,
		ExpectedAck: PacketUNSUBACK,
		Filters:     filters,
	})
}

func (s *InFlightStore) insert(entry *InFlightEntry) *InFlightEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inflightKey{id: entry.PacketID, kind: entry.Kind}
	if existing, ok := s.byKey[key]; ok {
		return existing
	}

	entry.SentAt = time.Now()
	entry.Seq = s.nextSeq
	s.nextSeq++
	s.order = append(s.order, entry)
	s.byKey[key] = entry
	return entry
}

// Get returns the tracked entry for (kind, packetID), if any.
func (s *InFlightStore) Get(kind InFlightKind, packetID uint16) (*InFlightEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byKey[inflightKey{id: packetID, kind: kind}]
	return e, ok
}

// Remove stops tracking (kind, packetID). The entry is spliced out of the
// insertion-order log at once; slices returned earlier by Ordered are
// copies and are not affected.
func (s *InFlightStore) Remove(kind InFlightKind, packetID uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inflightKey{id: packetID, kind: kind}
	entry, ok := s.byKey[key]
	if !ok {
		return false
	}
	delete(s.byKey, key)

	for i, e := range s.order {
		if e == entry {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Ordered returns the still-tracked entries of the given kind in the
// original insertion order, for replaying outbound packets after a
// reconnect with session state preserved.
func (s *InFlightStore) Ordered(kind InFlightKind) []*InFlightEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*InFlightEntry, 0, len(s.order))
	for _, e := range s.order {
		if e.Kind == kind {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of tracked entries of the given kind.
func (s *InFlightStore) Len(kind InFlightKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.order {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// MarkRetry updates bookkeeping on an entry ahead of a DUP retransmission.
func (s *InFlightStore) MarkRetry(kind InFlightKind, packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byKey[inflightKey{id: packetID, kind: kind}]; ok {
		e.DUP = true
		e.RetryCount++
		e.SentAt = time.Now()
	}
}
