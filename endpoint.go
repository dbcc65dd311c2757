package mqttcore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotConnected  = errors.New("mqttcore: endpoint not connected")
	ErrAlreadyClosed = errors.New("mqttcore: endpoint already closed")
	ErrUnexpectedAck = errors.New("mqttcore: unexpected CONNACK")
)

// Transport is the byte stream an Endpoint runs the protocol over. Plain
// net.Conn satisfies it directly; internal/wsconn adapts a WebSocket
// connection to it.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// deadlineSetter is implemented by transports that support read/write
// deadlines (net.Conn does); detected via interface assertion rather than
// required outright so a bare io.ReadWriteCloser still works.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Role distinguishes which side of the handshake an Endpoint plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// AckMode selects whether incoming QoS 1/2 PUBLISH packets are
// acknowledged automatically by the dispatch loop, or left for the
// application to acknowledge explicitly via AckPublish.
type AckMode int

const (
	AckAutomatic AckMode = iota
	AckManual
)

// Handler is a raw packet hook. Returning false detaches it from the
// dispatch loop after this call.
type Handler func(Packet) bool

// MessageHandler receives application messages delivered from PUBLISH.
type MessageHandler func(msg *Message)

// EndpointOption configures a new Endpoint.
type EndpointOption func(*Endpoint)

func WithLogger(l Logger) EndpointOption {
	return func(e *Endpoint) { e.logger = l }
}

func WithMetrics(m *EndpointMetrics) EndpointOption {
	return func(e *Endpoint) { e.metrics = m }
}

func WithAckMode(mode AckMode) EndpointOption {
	return func(e *Endpoint) { e.ackMode = mode }
}

func WithMaxPacketSize(n uint32) EndpointOption {
	return func(e *Endpoint) { e.maxInboundSize = n }
}

func WithOnPublish(h MessageHandler) EndpointOption {
	return func(e *Endpoint) { e.publishHandler = h }
}

func WithOnError(h func(error)) EndpointOption {
	return func(e *Endpoint) { e.onError = h }
}

func WithOnClose(h func()) EndpointOption {
	return func(e *Endpoint) { e.onClose = h }
}

// WithRetransmit resends unacknowledged QoS 1/2 packets that have been
// outstanding longer than timeout, checking on that same cadence, up to
// maxRetries per packet. Off by default: the protocol only requires
// retransmission on reconnect (ReplayInFlight), but a lossy bridge peer
// that swallows acks can be nudged this way.
func WithRetransmit(timeout time.Duration, maxRetries int) EndpointOption {
	return func(e *Endpoint) { e.retryInterval = timeout; e.retryMax = maxRetries }
}

// Endpoint is the unified client/server protocol engine: one struct
// binding a Transport to one Session, dispatching inbound packets through
// a FrameReader and a registered handler table. Both sides of the
// handshake run the same state machine; Role only selects which half of
// the CONNECT/CONNACK exchange this endpoint initiates.
type Endpoint struct {
	transport Transport
	session   Session
	version   ProtocolVersion
	role      Role
	ackMode   AckMode

	logger  Logger
	metrics *EndpointMetrics

	maxInboundSize  uint32
	outboundMaxSize uint32 // peer-advertised cap; 0 = use maxInboundSize

	writeMu sync.Mutex
	reader  *FrameReader
	flow    *FlowController

	connected atomic.Bool
	closed    atomic.Bool
	readDone  chan struct{}

	publishHandler MessageHandler
	handlersMu     sync.RWMutex
	handlers       map[PacketType][]Handler

	peerDisconnect atomic.Pointer[DisconnectPacket]

	retryInterval time.Duration
	retryMax      int
	retryQoS1     *QoS1Tracker
	retryQoS2     *QoS2Tracker
	retryStarted  atomic.Bool
	retryStop     chan struct{}

	onError func(error)
	onClose func()

	pingSched *pingScheduler
	idleTimer *IdleTimer
}

// NewEndpoint constructs an Endpoint. Connect/Accept must be called
// before Run to complete the handshake.
func NewEndpoint(transport Transport, session Session, version ProtocolVersion, role Role, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		transport:      transport,
		session:        session,
		version:        version,
		role:           role,
		logger:         NewNoOpLogger(),
		metrics:        NewEndpointMetrics(nil),
		maxInboundSize: 268435455,
		readDone:       make(chan struct{}),
		handlers:       make(map[PacketType][]Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reader = NewFrameReader(version, e.maxInboundSize)
	e.flow = NewFlowController(65535)
	if e.retryInterval > 0 {
		e.retryQoS1 = NewQoS1Tracker(session.InFlight(), e.retryInterval, e.retryMax)
		e.retryQoS2 = NewQoS2Tracker(session.InFlight(), e.retryInterval, e.retryMax)
		e.retryStop = make(chan struct{})
	}
	session.SetProtocolVersion(version)
	return e
}

// OnPacket registers a raw handler for packetType, invoked after this
// Endpoint's own built-in handling for that type.
func (e *Endpoint) OnPacket(packetType PacketType, h Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[packetType] = append(e.handlers[packetType], h)
}

// Session returns the Session this Endpoint drives.
func (e *Endpoint) Session() Session { return e.session }

// IsConnected reports whether the handshake has completed and Close
// hasn't been called.
func (e *Endpoint) IsConnected() bool {
	return e.connected.Load() && !e.closed.Load()
}

func (e *Endpoint) outboundLimit() uint32 {
	if e.outboundMaxSize > 0 {
		return e.outboundMaxSize
	}
	return e.maxInboundSize
}

func (e *Endpoint) writePacket(pkt Packet) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return 0, ErrAlreadyClosed
	}

	if ds, ok := e.transport.(deadlineSetter); ok {
		_ = ds.SetWriteDeadline(time.Now().Add(30 * time.Second))
		defer ds.SetWriteDeadline(time.Time{})
	}

	n, err := WritePacket(e.transport, pkt, e.version, e.outboundLimit())
	if err != nil {
		return n, err
	}
	e.metrics.PacketSent(pkt.Type())
	e.metrics.BytesSent(n)
	return n, nil
}

// Connect performs the client-side handshake: writes connect, blocks for
// the CONNACK, applies server-advertised properties to this Endpoint and
// its Session, and arms the client-side ping scheduler.
func (e *Endpoint) Connect(ctx context.Context, connect *ConnectPacket) (*ConnackPacket, error) {
	if e.role != RoleClient {
		return nil, errors.New("mqttcore: Connect is client-only")
	}
	if err := connect.Validate(); err != nil {
		return nil, err
	}

	e.session.SetCredentials(Credentials{Username: connect.Username, Password: connect.Password})
	if will := WillFromConnect(connect); will != nil {
		e.session.SetWill(will)
	}

	if _, err := e.writePacket(connect); err != nil {
		return nil, err
	}

	pkt, _, err := ReadPacket(e.transport, e.version, e.maxInboundSize)
	if err != nil {
		return nil, err
	}
	ack, ok := pkt.(*ConnackPacket)
	if !ok {
		return nil, ErrUnexpectedAck
	}
	if ack.ReasonCode.IsError() {
		return ack, nil
	}

	keepAlive := connect.KeepAlive
	if e.version == MQTT5 {
		if rm := ack.Props.GetUint16(PropReceiveMaximum); rm > 0 {
			// The server's Receive Maximum bounds our unacknowledged
			// QoS > 0 sends.
			e.flow.SetReceiveMaximum(rm)
		}
		if ka := ack.Props.GetUint16(PropServerKeepAlive); ka > 0 {
			keepAlive = ka
		}
		if mps := ack.Props.GetUint32(PropMaximumPacketSize); mps > 0 {
			e.outboundMaxSize = mps
		}
	}

	e.connected.Store(true)
	e.pingSched = newPingScheduler(keepAlive, e.sendPing)
	e.startRetransmit()
	return ack, nil
}

func (e *Endpoint) sendPing() {
	if e.closed.Load() {
		return
	}
	_, _ = e.writePacket(&PingreqPacket{})
}

// Accept is the server-side counterpart: it blocks for the first inbound
// packet, which must be CONNECT, and returns it for the caller to
// authorize before responding with SendConnack.
func (e *Endpoint) Accept() (*ConnectPacket, error) {
	if e.role != RoleServer {
		return nil, errors.New("mqttcore: Accept is server-only")
	}
	pkt, _, err := ReadPacket(e.transport, e.version, e.maxInboundSize)
	if err != nil {
		return nil, err
	}
	connect, ok := pkt.(*ConnectPacket)
	if !ok {
		return nil, ErrProtocolError
	}
	if err := connect.Validate(); err != nil {
		return nil, err
	}

	e.session.SetCredentials(Credentials{Username: connect.Username, Password: connect.Password})
	if will := WillFromConnect(connect); will != nil {
		e.session.SetWill(will)
	}
	return connect, nil
}

// SendConnack completes the server-side handshake and arms the idle timer
// that enforces the negotiated keep-alive.
func (e *Endpoint) SendConnack(ack *ConnackPacket, keepAliveSec uint16) error {
	if _, err := e.writePacket(ack); err != nil {
		return err
	}
	if ack.ReasonCode.IsError() {
		return nil
	}
	e.connected.Store(true)
	e.idleTimer = NewIdleTimer(keepAliveSec, e.onIdleExpire)
	e.startRetransmit()
	return nil
}

func (e *Endpoint) startRetransmit() {
	if e.retryInterval <= 0 || !e.retryStarted.CompareAndSwap(false, true) {
		return
	}
	go e.retransmitLoop()
}

func (e *Endpoint) retransmitLoop() {
	ticker := time.NewTicker(e.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.retryStop:
			return
		case <-ticker.C:
			e.retransmitDue()
		}
	}
}

// retransmitDue rewrites every outbound handshake whose ack is overdue:
// PUBLISH with DUP for entries still awaiting PUBACK/PUBREC, PUBREL for
// entries past PUBREC.
func (e *Endpoint) retransmitDue() {
	due := append(e.retryQoS1.PendingRetries(), e.retryQoS2.PendingRetries()...)
	for _, entry := range due {
		if entry.ExpectedAck == PacketPUBCOMP {
			_, _ = e.writePacket(&PubrelPacket{PacketID: entry.PacketID, ReasonCode: ReasonSuccess})
			continue
		}

		pkt := &PublishPacket{}
		pkt.FromMessage(entry.Message)
		pkt.PacketID = entry.PacketID
		pkt.QoS = entry.QoS
		pkt.DUP = true
		_, _ = e.writePacket(pkt)
	}
}

func (e *Endpoint) onIdleExpire() {
	e.logger.Warn("keep-alive timeout", LogFields{LogFieldClientID: e.session.ClientID()})
	_ = e.Close()
}

// Run drives the dispatch loop until the transport errors or Close is
// called. It blocks; callers typically invoke it in its own goroutine.
func (e *Endpoint) Run() error {
	defer close(e.readDone)
	buf := make([]byte, 4096)

	for {
		if e.closed.Load() {
			return nil
		}

		n, err := e.transport.Read(buf)
		if n > 0 {
			e.metrics.BytesReceived(n)
			if derr := e.feed(buf[:n]); derr != nil {
				if e.version == MQTT5 && e.connected.Load() {
					reason := ReasonMalformedPacket
					switch {
					case errors.Is(derr, ErrPacketTooLarge):
						reason = ReasonPacketTooLarge
					case errors.Is(derr, ErrProtocolError):
						reason = ReasonProtocolError
					}
					_, _ = e.writePacket(&DisconnectPacket{ReasonCode: reason})
				}
				e.fail(derr)
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.finish(nil)
				return nil
			}
			e.fail(err)
			return err
		}
	}
}

func (e *Endpoint) feed(chunk []byte) error {
	for len(chunk) > 0 {
		consumed, pkt, err := e.reader.Feed(chunk)
		if err != nil {
			return err
		}
		chunk = chunk[consumed:]
		if pkt != nil {
			e.metrics.PacketReceived(pkt.Type())
			if e.idleTimer != nil {
				e.idleTimer.Reset()
			}
			if !e.dispatch(pkt) {
				return nil
			}
		}
		if consumed == 0 {
			return nil
		}
	}
	return nil
}

func (e *Endpoint) dispatch(pkt Packet) bool {
	switch p := pkt.(type) {
	case *PublishPacket:
		e.handlePublish(p)
	case *PubackPacket:
		e.handlePuback(p)
	case *PubrecPacket:
		e.handlePubrec(p)
	case *PubrelPacket:
		e.handlePubrel(p)
	case *PubcompPacket:
		e.handlePubcomp(p)
	case *SubackPacket:
		e.handleSuback(p)
	case *UnsubackPacket:
		e.handleUnsuback(p)
	case *PingreqPacket:
		_, _ = e.writePacket(&PingrespPacket{})
	case *PingrespPacket:
		// liveness only; nothing to do
	case *DisconnectPacket:
		e.peerDisconnect.Store(p)
		e.finish(nil)
		return false
	}

	e.handlersMu.RLock()
	hs := append([]Handler(nil), e.handlers[pkt.Type()]...)
	e.handlersMu.RUnlock()

	detached := make(map[int]bool)
	for i, h := range hs {
		if !h(pkt) {
			detached[i] = true
		}
	}
	if len(detached) > 0 {
		// Handlers are append-only, so the snapshot is a prefix of the
		// current slice and snapshot indexes still line up.
		e.handlersMu.Lock()
		current := e.handlers[pkt.Type()]
		kept := make([]Handler, 0, len(current))
		for i, h := range current {
			if !detached[i] {
				kept = append(kept, h)
			}
		}
		e.handlers[pkt.Type()] = kept
		e.handlersMu.Unlock()
	}
	return true
}

func (e *Endpoint) handlePublish(pkt *PublishPacket) {
	deliver := e.session.QoS().ReceivePublish(pkt)
	if deliver && e.publishHandler != nil {
		e.publishHandler(pkt.ToMessage())
	}
	e.metrics.MessageReceived(pkt.QoS)

	if e.ackMode != AckAutomatic {
		return
	}
	switch pkt.QoS {
	case 1:
		_, _ = e.writePacket(&PubackPacket{PacketID: pkt.PacketID, ReasonCode: ReasonSuccess})
	case 2:
		_, _ = e.writePacket(&PubrecPacket{PacketID: pkt.PacketID, ReasonCode: ReasonSuccess})
	}
}

// AckPublish sends the acknowledgment for a PUBLISH received under
// AckManual mode; callers must have already processed the message.
func (e *Endpoint) AckPublish(pkt *PublishPacket) error {
	switch pkt.QoS {
	case 1:
		_, err := e.writePacket(&PubackPacket{PacketID: pkt.PacketID, ReasonCode: ReasonSuccess})
		return err
	case 2:
		_, err := e.writePacket(&PubrecPacket{PacketID: pkt.PacketID, ReasonCode: ReasonSuccess})
		return err
	}
	return nil
}

func (e *Endpoint) handlePubrel(pkt *PubrelPacket) {
	e.session.QoS().ReceivePubrel(pkt.PacketID)
	_, _ = e.writePacket(&PubcompPacket{PacketID: pkt.PacketID, ReasonCode: ReasonSuccess})
}

func (e *Endpoint) handlePuback(pkt *PubackPacket) {
	if _, ok := e.session.QoS().HandlePuback(pkt.PacketID); ok {
		_ = e.session.PacketIDs().Release(pkt.PacketID)
		e.flow.Release()
	}
}

func (e *Endpoint) handlePubrec(pkt *PubrecPacket) {
	if _, ok := e.session.QoS().HandlePubrec(pkt.PacketID); ok {
		_, _ = e.writePacket(&PubrelPacket{PacketID: pkt.PacketID, ReasonCode: ReasonSuccess})
	}
}

func (e *Endpoint) handlePubcomp(pkt *PubcompPacket) {
	if _, ok := e.session.QoS().HandlePubcomp(pkt.PacketID); ok {
		_ = e.session.PacketIDs().Release(pkt.PacketID)
		e.flow.Release()
	}
}

// Publish sends msg, allocating a packet id automatically for QoS > 0.
func (e *Endpoint) Publish(msg *Message) error {
	if !e.IsConnected() {
		return ErrNotConnected
	}
	if err := ValidateTopicName(msg.Topic); err != nil {
		return err
	}

	pkt := &PublishPacket{}
	pkt.FromMessage(msg)

	if msg.QoS > 0 {
		if err := e.flow.Acquire(); err != nil {
			return err
		}
		id, err := e.session.PacketIDs().Allocate()
		if err != nil {
			e.flow.Release()
			return err
		}
		pkt.PacketID = id
		e.session.QoS().Send(id, msg, msg.QoS)
	}

	if _, err := e.writePacket(pkt); err != nil {
		if msg.QoS > 0 {
			e.session.InFlight().Remove(InFlightOutbound, pkt.PacketID)
			_ = e.session.PacketIDs().Release(pkt.PacketID)
			e.flow.Release()
		}
		return err
	}
	e.metrics.MessageSent(msg.QoS)
	return nil
}

// AcquiredPublish sends msg using a caller-chosen packet id, failing with
// ErrPacketIDInUse if the id is already live.
func (e *Endpoint) AcquiredPublish(packetID uint16, msg *Message) error {
	if !e.IsConnected() {
		return ErrNotConnected
	}
	if msg.QoS > 0 {
		if err := e.flow.Acquire(); err != nil {
			return err
		}
		if err := e.session.PacketIDs().Reserve(packetID); err != nil {
			e.flow.Release()
			return err
		}
		e.session.QoS().Send(packetID, msg, msg.QoS)
	}

	pkt := &PublishPacket{}
	pkt.FromMessage(msg)
	pkt.PacketID = packetID

	if _, err := e.writePacket(pkt); err != nil {
		if msg.QoS > 0 {
			e.session.InFlight().Remove(InFlightOutbound, packetID)
			_ = e.session.PacketIDs().Release(packetID)
			e.flow.Release()
		}
		return err
	}
	return nil
}

// Subscribe sends a SUBSCRIBE for subs, allocating a packet id.
func (e *Endpoint) Subscribe(subs []Subscription) error {
	return e.subscribe(0, subs, false)
}

// AcquiredSubscribe sends a SUBSCRIBE using a caller-chosen packet id.
func (e *Endpoint) AcquiredSubscribe(packetID uint16, subs []Subscription) error {
	return e.subscribe(packetID, subs, true)
}

func (e *Endpoint) subscribe(packetID uint16, subs []Subscription, manual bool) error {
	if !e.IsConnected() {
		return ErrNotConnected
	}
	if len(subs) == 0 {
		return ErrInvalidTopicFilter
	}

	var err error
	if manual {
		err = e.session.PacketIDs().Reserve(packetID)
	} else {
		packetID, err = e.session.PacketIDs().Allocate()
	}
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			_ = e.session.PacketIDs().Release(packetID)
			return err
		}
	}

	// The pending SUBSCRIBE lives in the session's in-flight store, not on
	// this Endpoint: a reconnect must replay it, and the local table is
	// only updated from the SUBACK so entries the server rejects never
	// appear subscribed.
	e.session.InFlight().PutSubscribe(packetID, subs)

	pkt := &SubscribePacket{PacketID: packetID, Subscriptions: subs}
	if _, err := e.writePacket(pkt); err != nil {
		e.session.InFlight().Remove(InFlightOutbound, packetID)
		_ = e.session.PacketIDs().Release(packetID)
		return err
	}
	return nil
}

func (e *Endpoint) handleSuback(pkt *SubackPacket) {
	entry, ok := e.session.InFlight().Get(InFlightOutbound, pkt.PacketID)
	if !ok || entry.ExpectedAck != PacketSUBACK {
		return
	}
	e.session.InFlight().Remove(InFlightOutbound, pkt.PacketID)

	for i, sub := range entry.Subs {
		if i >= len(pkt.ReasonCodes) || pkt.ReasonCodes[i].IsError() {
			continue
		}
		sub.QoS = byte(pkt.ReasonCodes[i]) & 0x03
		_, _ = e.session.Subscriptions().Add(sub)
	}
	_ = e.session.PacketIDs().Release(pkt.PacketID)
}

func (e *Endpoint) handleUnsuback(pkt *UnsubackPacket) {
	entry, ok := e.session.InFlight().Get(InFlightOutbound, pkt.PacketID)
	if !ok || entry.ExpectedAck != PacketUNSUBACK {
		return
	}
	e.session.InFlight().Remove(InFlightOutbound, pkt.PacketID)

	for i, f := range entry.Filters {
		if e.version == MQTT5 && i < len(pkt.ReasonCodes) && pkt.ReasonCodes[i].IsError() {
			continue
		}
		e.session.Subscriptions().Remove(f)
	}
	_ = e.session.PacketIDs().Release(pkt.PacketID)
}

// Unsubscribe sends an UNSUBSCRIBE for filters, allocating a packet id.
func (e *Endpoint) Unsubscribe(filters []string) error {
	return e.unsubscribe(0, filters, false)
}

// AcquiredUnsubscribe sends an UNSUBSCRIBE using a caller-chosen packet id.
func (e *Endpoint) AcquiredUnsubscribe(packetID uint16, filters []string) error {
	return e.unsubscribe(packetID, filters, true)
}

func (e *Endpoint) unsubscribe(packetID uint16, filters []string, manual bool) error {
	if !e.IsConnected() {
		return ErrNotConnected
	}
	if len(filters) == 0 {
		return ErrInvalidTopicFilter
	}

	var err error
	if manual {
		err = e.session.PacketIDs().Reserve(packetID)
	} else {
		packetID, err = e.session.PacketIDs().Allocate()
	}
	if err != nil {
		return err
	}

	e.session.InFlight().PutUnsubscribe(packetID, filters)

	pkt := &UnsubscribePacket{PacketID: packetID, TopicFilters: filters}
	if _, err := e.writePacket(pkt); err != nil {
		e.session.InFlight().Remove(InFlightOutbound, packetID)
		_ = e.session.PacketIDs().Release(packetID)
		return err
	}
	return nil
}

// ReplayInFlight resends every still-pending outbound entry in original
// insertion order after a reconnect that preserved session state: PUBLISH
// with DUP set, PUBREL for entries already past PUBREC, and SUBSCRIBE/
// UNSUBSCRIBE that never got their ack, rebuilt from the stored entry.
func (e *Endpoint) ReplayInFlight() error {
	for _, entry := range e.session.InFlight().Ordered(InFlightOutbound) {
		switch entry.ExpectedAck {
		case PacketSUBACK:
			pkt := &SubscribePacket{PacketID: entry.PacketID, Subscriptions: entry.Subs}
			if _, err := e.writePacket(pkt); err != nil {
				return err
			}
			continue

		case PacketUNSUBACK:
			pkt := &UnsubscribePacket{PacketID: entry.PacketID, TopicFilters: entry.Filters}
			if _, err := e.writePacket(pkt); err != nil {
				return err
			}
			continue

		case PacketPUBCOMP:
			// PUBREC already arrived; only the PUBREL needs resending,
			// and PUBREL carries no DUP flag.
			rel := &PubrelPacket{PacketID: entry.PacketID, ReasonCode: ReasonSuccess}
			if _, err := e.writePacket(rel); err != nil {
				return err
			}
			continue
		}

		pkt := &PublishPacket{}
		pkt.FromMessage(entry.Message)
		pkt.PacketID = entry.PacketID
		pkt.QoS = entry.QoS
		pkt.DUP = true

		if limit := e.outboundLimit(); limit > 0 {
			var sz bytes.Buffer
			if _, err := pkt.Encode(&sz, e.version); err != nil {
				return err
			}
			if uint32(sz.Len()) > limit {
				// The peer shrank its maximum packet size below this
				// entry; it can never be delivered on this connection.
				e.session.InFlight().Remove(InFlightOutbound, entry.PacketID)
				_ = e.session.PacketIDs().Release(entry.PacketID)
				if e.onError != nil {
					e.onError(ErrPacketTooLarge)
				}
				continue
			}
		}

		e.session.InFlight().MarkRetry(InFlightOutbound, entry.PacketID)
		if _, err := e.writePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

// PeerDisconnect returns the DISCONNECT packet the peer sent before the
// connection closed, or nil if the connection ended without one. A server
// uses this to distinguish a graceful goodbye (will suppressed) from an
// ungraceful drop (will published).
func (e *Endpoint) PeerDisconnect() *DisconnectPacket {
	return e.peerDisconnect.Load()
}

// Disconnect sends a DISCONNECT with reason and waits up to timeout for
// the transport to actually close (Run's read loop observing EOF), rather
// than treating the send itself as closure -- a pending graceful
// disconnect races against the peer's FIN exactly like a real TCP close
// would.
func (e *Endpoint) Disconnect(reason ReasonCode, timeout time.Duration) error {
	if e.closed.Load() {
		return nil
	}

	_, _ = e.writePacket(&DisconnectPacket{ReasonCode: reason})

	select {
	case <-e.readDone:
	case <-time.After(timeout):
	}
	return e.Close()
}

func (e *Endpoint) finish(err error) {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.pingSched != nil {
		e.pingSched.Stop()
	}
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	if e.retryStop != nil && e.retryStarted.Load() {
		close(e.retryStop)
	}
	_ = e.transport.Close()
	if err != nil && e.onError != nil {
		e.onError(err)
	}
	if e.onClose != nil {
		e.onClose()
	}
}

func (e *Endpoint) fail(err error) {
	e.finish(err)
}

// Close tears down the endpoint without sending DISCONNECT.
func (e *Endpoint) Close() error {
	e.finish(nil)
	return nil
}

// drainReader is a convenience for tests that want to feed a FrameReader
// from a fixed byte slice without going through a real Transport.
func drainReader(r *FrameReader, data []byte) ([]Packet, error) {
	var packets []Packet
	buf := bytes.NewReader(data)
	chunk := make([]byte, 512)
	for {
		n, err := buf.Read(chunk)
		if n > 0 {
			rest := chunk[:n]
			for len(rest) > 0 {
				consumed, pkt, ferr := r.Feed(rest)
				if ferr != nil {
					return packets, ferr
				}
				rest = rest[consumed:]
				if pkt != nil {
					packets = append(packets, pkt)
				}
				if consumed == 0 {
					break
				}
			}
		}
		if err != nil {
			break
		}
	}
	return packets, nil
}
