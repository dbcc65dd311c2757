package mqttcore

import "sync"

// Outbound entry states (publisher side).
const (
	qosStateAwaitingPuback byte = iota
	qosStateAwaitingPubrec
	qosStateAwaitingPubcomp
)

// Inbound entry states (subscriber side, QoS 2 only).
const (
	qosStateReceivedPublish byte = iota
	qosStateAwaitingPubrelAck
)

// QoSEngine runs the publisher- and subscriber-side QoS 1/2 handshakes on
// top of an InFlightStore for ordering and a dedicated received-packet-id
// set for subscriber-side QoS 2 duplicate suppression. Keeping it out of
// the connection read loop lets a client endpoint and a server endpoint
// drive the same state machine.
type QoSEngine struct {
	store *InFlightStore

	mu           sync.Mutex
	qos2Received map[uint16]struct{}
}

// NewQoSEngine returns a QoSEngine backed by store.
func NewQoSEngine(store *InFlightStore) *QoSEngine {
	return &QoSEngine{
		store:        store,
		qos2Received: make(map[uint16]struct{}),
	}
}

// Send begins tracking an outbound QoS 1 or 2 PUBLISH. Call before writing
// the packet to the wire; qos must be 1 or 2 (QoS 0 has no handshake).
func (e *QoSEngine) Send(packetID uint16, msg *Message, qos byte) *InFlightEntry {
	entry := e.store.Put(InFlightOutbound, packetID, msg, qos)
	if qos == 2 {
		entry.State = qosStateAwaitingPubrec
		entry.ExpectedAck = PacketPUBREC
	} else {
		entry.State = qosStateAwaitingPuback
		entry.ExpectedAck = PacketPUBACK
	}
	return entry
}

// HandlePuback completes a QoS 1 outbound flow. ok is false if packetID
// was not tracked (a stray or duplicate PUBACK) or the entry is awaiting
// a different ack.
func (e *QoSEngine) HandlePuback(packetID uint16) (entry *InFlightEntry, ok bool) {
	entry, ok = e.store.Get(InFlightOutbound, packetID)
	if !ok || entry.ExpectedAck != PacketPUBACK {
		return nil, false
	}
	e.store.Remove(InFlightOutbound, packetID)
	return entry, true
}

// HandlePubrec advances a QoS 2 outbound flow from "awaiting PUBREC" to
// "awaiting PUBCOMP". The caller must respond with a PUBREL carrying the
// same packet id; a retransmitted PUBREC (the peer lost our PUBREL) still
// reports ok so the PUBREL goes out again. ok is false for a stray PUBREC.
func (e *QoSEngine) HandlePubrec(packetID uint16) (entry *InFlightEntry, ok bool) {
	entry, ok = e.store.Get(InFlightOutbound, packetID)
	if !ok || (entry.ExpectedAck != PacketPUBREC && entry.ExpectedAck != PacketPUBCOMP) {
		return nil, false
	}
	entry.State = qosStateAwaitingPubcomp
	entry.ExpectedAck = PacketPUBCOMP
	return entry, true
}

// HandlePubcomp completes a QoS 2 outbound flow.
func (e *QoSEngine) HandlePubcomp(packetID uint16) (entry *InFlightEntry, ok bool) {
	entry, ok = e.store.Get(InFlightOutbound, packetID)
	if !ok || entry.ExpectedAck != PacketPUBCOMP {
		return nil, false
	}
	e.store.Remove(InFlightOutbound, packetID)
	return entry, true
}

// PendingOutbound returns every outbound entry in insertion order, for
// replaying unacknowledged packets after a reconnect that preserved
// session state.
func (e *QoSEngine) PendingOutbound() []*InFlightEntry {
	return e.store.Ordered(InFlightOutbound)
}

// ReceivePublish processes an inbound PUBLISH on the subscriber side.
// deliver reports whether the application should see this message (QoS 1
// always redelivers on DUP; QoS 2 redelivers at most once, deduplicated
// by packet id). The caller still sends PUBACK (QoS 1) or PUBREC (QoS 2)
// when deliver is false, since an ack must be resent even for an
// already-seen QoS 2 packet id.
func (e *QoSEngine) ReceivePublish(pkt *PublishPacket) (deliver bool) {
	switch pkt.QoS {
	case 0:
		return true
	case 1:
		return true
	case 2:
		e.mu.Lock()
		_, seen := e.qos2Received[pkt.PacketID]
		if !seen {
			e.qos2Received[pkt.PacketID] = struct{}{}
		}
		e.mu.Unlock()
		if !seen {
			e.store.Put(InFlightInbound, pkt.PacketID, pkt.ToMessage(), 2).State = qosStateReceivedPublish
		}
		return !seen
	default:
		return false
	}
}

// ReceivePubrel completes the subscriber-side QoS 2 flow: the packet id
// is released from both the dedup set and the in-flight store, and the
// caller should respond with PUBCOMP. Safe to call again for a
// retransmitted PUBREL; it simply returns ok=true with no further effect.
func (e *QoSEngine) ReceivePubrel(packetID uint16) (ok bool) {
	e.mu.Lock()
	_, existed := e.qos2Received[packetID]
	delete(e.qos2Received, packetID)
	e.mu.Unlock()

	e.store.Remove(InFlightInbound, packetID)
	return existed || true
}

// PendingInbound returns the inbound QoS 2 entries received but not yet
// released by PUBREL, in insertion order.
func (e *QoSEngine) PendingInbound() []*InFlightEntry {
	return e.store.Ordered(InFlightInbound)
}
