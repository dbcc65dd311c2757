package mqttcore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrServerClosed   = errors.New("mqttcore: server closed")
	ErrMaxConnections = errors.New("mqttcore: maximum connections reached")
)

type serverConfig struct {
	authenticator Authenticator
	enhancedAuth  EnhancedAuthenticator
	sessions      SessionStore
	sessionNew    SessionFactory
	router        Router

	logger  Logger
	metrics *EndpointMetrics

	maxPacketSize  uint32
	maxConnections int
	connectTimeout time.Duration
	sessionExpiry  time.Duration
	maxQoS         byte
}

func defaultServerConfig() *serverConfig {
	return &serverConfig{
		authenticator:  AllowAll,
		sessions:       NewMemorySessionStore(),
		sessionNew:     DefaultSessionFactory(),
		logger:         NewNoOpLogger(),
		metrics:        NewEndpointMetrics(nil),
		maxPacketSize:  268435455,
		connectTimeout: 10 * time.Second,
		sessionExpiry:  time.Hour,
		maxQoS:         2,
	}
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

func WithAuthenticator(a Authenticator) ServerOption {
	return func(c *serverConfig) { c.authenticator = a }
}

// WithEnhancedAuthenticator enables v5 enhanced authentication (AUTH
// packet exchanges, e.g. SCRAM) for clients that request it via the
// Authentication Method CONNECT property.
func WithEnhancedAuthenticator(a EnhancedAuthenticator) ServerOption {
	return func(c *serverConfig) { c.enhancedAuth = a }
}

func WithSessionStore(s SessionStore) ServerOption {
	return func(c *serverConfig) { c.sessions = s }
}

func WithSessionFactory(f SessionFactory) ServerOption {
	return func(c *serverConfig) { c.sessionNew = f }
}

func WithRouter(r Router) ServerOption {
	return func(c *serverConfig) { c.router = r }
}

func WithServerLogger(l Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

func WithServerMetrics(m *EndpointMetrics) ServerOption {
	return func(c *serverConfig) { c.metrics = m }
}

func WithServerMaxPacketSize(n uint32) ServerOption {
	return func(c *serverConfig) { c.maxPacketSize = n }
}

func WithMaxConnections(n int) ServerOption {
	return func(c *serverConfig) { c.maxConnections = n }
}

func WithServerConnectTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.connectTimeout = d }
}

// WithSessionExpiry sets the retention for v3.1.1 non-clean sessions, whose
// CONNECT has no expiry field. v5 sessions use the Session Expiry Interval
// their CONNECT carries; when it is absent the session ends with the
// connection and this default does not apply.
func WithSessionExpiry(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.sessionExpiry = d }
}

// WithMaxQoS caps the QoS the server grants on SUBACK and accepts on
// PUBLISH.
func WithMaxQoS(qos byte) ServerOption {
	return func(c *serverConfig) { c.maxQoS = qos }
}

// Server accepts transport connections and runs a server-role Endpoint
// over each, multiplexing MQTT 3.1.1 and 5.0 clients on one listener. The
// Server owns client-id takeover, session persistence across reconnects,
// will publication, and the bridge between its endpoints and a Router.
type Server struct {
	config *serverConfig

	mu       sync.Mutex
	clients  map[string]*serverConn
	running  atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	listener Listener
}

// NewServer creates a Server. A Router must be supplied via WithRouter
// for messages to flow between clients; without one, inbound PUBLISH
// packets are acknowledged and dropped.
func NewServer(opts ...ServerOption) *Server {
	config := defaultServerConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Server{
		config:  config,
		clients: make(map[string]*serverConn),
		done:    make(chan struct{}),
	}
}

// Serve accepts connections from listener until Close. It blocks.
func (s *Server) Serve(listener Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerClosed
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return ErrServerClosed
			default:
			}
			return err
		}

		if s.config.maxConnections > 0 && s.connCount() >= s.config.maxConnections {
			s.config.logger.Warn("connection limit reached", LogFields{"remote": conn.RemoteAddr().String()})
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// ServeConn runs the protocol over one already-established transport
// connection, e.g. produced by a WebSocket upgrade, without going through
// a Listener. It returns when the connection is torn down.
func (s *Server) ServeConn(conn Conn) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConn(conn)
}

// ListenAndServe listens on a plain TCP address and serves it.
func (s *Server) ListenAndServe(address string) error {
	listener, err := NewTCPListener(address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Close stops accepting connections and tears down every live client.
func (s *Server) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.done)

	s.mu.Lock()
	listener := s.listener
	conns := make([]*serverConn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range conns {
		_ = c.endpoint.Close()
	}
	s.wg.Wait()
	return nil
}

// Sessions exposes the server's session store, chiefly for tests and
// operational tooling.
func (s *Server) Sessions() SessionStore { return s.config.sessions }

func (s *Server) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// serverConn is one accepted client: its endpoint, its session, and the
// CONNECT-negotiated parameters the teardown path needs.
type serverConn struct {
	server   *Server
	endpoint *Endpoint
	session  Session
	conn     Conn

	clientID      string
	version       ProtocolVersion
	cleanStart    bool
	keepAlive     uint16
	sessionExpiry time.Duration
}

// readConnect decodes the first packet of a fresh connection, which must
// be a CONNECT, sniffing the protocol level byte so one listener serves
// both v3.1.1 and v5 clients. The returned version is whatever the client
// declared; an unsupported level yields ErrInvalidProtocolVersion along
// with the declared value so the caller can still answer with the right
// CONNACK shape.
func readConnect(r io.Reader, maxSize uint32) (*ConnectPacket, ProtocolVersion, error) {
	var header FixedHeader
	if _, err := header.Decode(r); err != nil {
		return nil, 0, err
	}
	if header.PacketType != PacketCONNECT {
		return nil, 0, ErrProtocolError
	}
	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, 0, ErrPacketTooLarge
	}

	body := make([]byte, header.RemainingLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, err
	}

	// Variable header: 2-byte name length, "MQTT", then the level byte.
	if len(body) < 7 || body[0] != 0 || body[1] != 4 || string(body[2:6]) != protocolName {
		return nil, 0, ErrInvalidProtocolName
	}
	version := ProtocolVersion(body[6])
	if version != MQTT311 && version != MQTT5 {
		return nil, version, ErrInvalidProtocolVersion
	}

	connect := &ConnectPacket{}
	if _, err := connect.Decode(bytes.NewReader(body), header, version); err != nil {
		return nil, version, err
	}
	return connect, version, nil
}

func (s *Server) handleConn(conn Conn) {
	if s.config.connectTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.connectTimeout))
	}

	connect, version, err := readConnect(conn, s.config.maxPacketSize)
	if err != nil {
		if errors.Is(err, ErrInvalidProtocolVersion) && version != 0 {
			// The closest speakable dialect still gets a proper refusal.
			if version > MQTT5 {
				version = MQTT5
			} else {
				version = MQTT311
			}
			s.refuse(conn, version, ReasonUnsupportedProtocolVersion)
		}
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// An empty client id is only acceptable when the client asked for a
	// fresh session; otherwise there is nothing to resume it against.
	clientID := connect.ClientID
	if clientID == "" {
		if !connect.CleanStart {
			s.refuse(conn, version, ReasonClientIDNotValid)
			_ = conn.Close()
			return
		}
		clientID = generateClientID()
	}

	authResult, err := s.authenticate(conn, connect, version, clientID)
	if err != nil || authResult == nil {
		_ = conn.Close()
		return
	}
	if !authResult.Success {
		code := authResult.ReasonCode
		if code == ReasonSuccess || !code.IsError() {
			code = ReasonNotAuthorized
		}
		s.refuse(conn, version, code)
		_ = conn.Close()
		return
	}
	assigned := clientID != connect.ClientID
	if authResult.AssignedClientID != "" {
		clientID = authResult.AssignedClientID
		assigned = true
	}

	// A second CONNECT for a live client id takes the connection over.
	s.mu.Lock()
	prev := s.clients[clientID]
	s.mu.Unlock()
	if prev != nil {
		prev.takeOver()
	}

	session, sessionPresent := s.attachSession(clientID, connect.CleanStart)
	session.SetProtocolVersion(version)

	sc := &serverConn{
		server:     s,
		session:    session,
		conn:       conn,
		clientID:   clientID,
		version:    version,
		cleanStart: connect.CleanStart,
		keepAlive:  connect.KeepAlive,
	}

	// v5 sessions live exactly as long as the Session Expiry Interval says
	// (absent means zero: the session ends with the connection). v3.1.1
	// non-clean sessions have no wire-level expiry, so the server-wide
	// default applies; clean sessions never outlive the connection.
	switch {
	case version == MQTT5:
		sc.sessionExpiry = time.Duration(connect.Props.GetUint32(PropSessionExpiryInterval)) * time.Second
	case connect.CleanStart:
		sc.sessionExpiry = 0
	default:
		sc.sessionExpiry = s.config.sessionExpiry
	}

	endpoint := NewEndpoint(conn, session, version, RoleServer,
		WithLogger(s.config.logger.WithFields(LogFields{LogFieldClientID: clientID})),
		WithMetrics(s.config.metrics),
		WithMaxPacketSize(s.config.maxPacketSize),
		WithOnPublish(sc.onInboundPublish),
	)
	sc.endpoint = endpoint
	endpoint.session.SetCredentials(Credentials{Username: connect.Username, Password: connect.Password})
	if will := WillFromConnect(connect); will != nil {
		session.SetWill(will)
	} else {
		session.SetWill(nil)
	}

	endpoint.OnPacket(PacketSUBSCRIBE, sc.onSubscribe)
	endpoint.OnPacket(PacketUNSUBSCRIBE, sc.onUnsubscribe)

	ack := &ConnackPacket{SessionPresent: sessionPresent, ReasonCode: ReasonSuccess}
	if version == MQTT5 {
		if assigned {
			ack.Props.Set(PropAssignedClientIdentifier, clientID)
		}
		ack.Props.Set(PropMaximumPacketSize, s.config.maxPacketSize)
	}
	if err := endpoint.SendConnack(ack, connect.KeepAlive); err != nil {
		_ = conn.Close()
		s.dropSession(sc)
		return
	}

	s.mu.Lock()
	s.clients[clientID] = sc
	s.mu.Unlock()
	s.config.metrics.ConnectionOpened()

	// A resumed session re-attaches its subscriptions to the router and
	// replays unacknowledged server-to-client packets in original order.
	if sessionPresent {
		sc.reattachSubscriptions()
		_ = endpoint.ReplayInFlight()
	}

	_ = endpoint.Run()
	sc.teardown()
}

func (s *Server) refuse(conn Conn, version ProtocolVersion, code ReasonCode) {
	ack := &ConnackPacket{ReasonCode: code}
	_, _ = WritePacket(conn, ack, version, 0)
}

// authenticate runs either the basic username/password path or, when the
// CONNECT names an Authentication Method and an enhanced authenticator is
// configured, the full v5 AUTH exchange.
func (s *Server) authenticate(conn Conn, connect *ConnectPacket, version ProtocolVersion, clientID string) (*AuthResult, error) {
	ctx := context.Background()

	if version == MQTT5 && connect.Props.Has(PropAuthenticationMethod) {
		if s.config.enhancedAuth == nil {
			s.refuse(conn, version, ReasonBadAuthMethod)
			return nil, nil
		}
		return s.runEnhancedAuth(ctx, conn, connect, clientID)
	}

	return s.config.authenticator.Authenticate(ctx, &AuthContext{
		ClientID:      clientID,
		Username:      connect.Username,
		Password:      connect.Password,
		RemoteAddr:    conn.RemoteAddr(),
		ConnectPacket: connect,
		CleanStart:    connect.CleanStart,
	})
}

func (s *Server) runEnhancedAuth(ctx context.Context, conn Conn, connect *ConnectPacket, clientID string) (*AuthResult, error) {
	method := connect.Props.GetString(PropAuthenticationMethod)
	if !s.config.enhancedAuth.SupportsMethod(method) {
		s.refuse(conn, MQTT5, ReasonBadAuthMethod)
		return nil, nil
	}

	authCtx := &EnhancedAuthContext{
		ClientID:   clientID,
		AuthMethod: method,
		AuthData:   connect.Props.GetBinary(PropAuthenticationData),
		RemoteAddr: conn.RemoteAddr(),
	}
	result, err := s.config.enhancedAuth.AuthStart(ctx, authCtx)
	if err != nil {
		return nil, err
	}

	for result.Continue {
		challenge := &AuthPacket{ReasonCode: ReasonContinueAuth}
		challenge.Props.Set(PropAuthenticationMethod, method)
		if len(result.AuthData) > 0 {
			challenge.Props.Set(PropAuthenticationData, result.AuthData)
		}
		if _, err := WritePacket(conn, challenge, MQTT5, 0); err != nil {
			return nil, err
		}

		pkt, _, err := ReadPacket(conn, MQTT5, s.config.maxPacketSize)
		if err != nil {
			return nil, err
		}
		reply, ok := pkt.(*AuthPacket)
		if !ok {
			return nil, ErrProtocolError
		}

		authCtx.AuthData = reply.Props.GetBinary(PropAuthenticationData)
		authCtx.ReasonCode = reply.ReasonCode
		authCtx.State = result.State
		result, err = s.config.enhancedAuth.AuthContinue(ctx, authCtx)
		if err != nil {
			return nil, err
		}
	}

	out := &AuthResult{Success: result.Success, ReasonCode: result.ReasonCode}
	if result.AssignedClientID != "" {
		out.AssignedClientID = result.AssignedClientID
	}
	return out, nil
}

// attachSession resolves the session for clientID per its clean-start
// flag: clean connections drop any prior session; non-clean connections
// resume an unexpired one and report session-present.
func (s *Server) attachSession(clientID string, cleanStart bool) (Session, bool) {
	store := s.config.sessions

	if cleanStart {
		_ = store.Delete(clientID)
		session := s.config.sessionNew(clientID)
		_ = store.Create(session)
		return session, false
	}

	if prior, err := store.Get(clientID); err == nil && !prior.IsExpired() {
		prior.SetExpiryTime(time.Time{})
		prior.UpdateLastActivity()
		return prior, true
	}

	_ = store.Delete(clientID)
	session := s.config.sessionNew(clientID)
	_ = store.Create(session)
	return session, false
}

func (s *Server) dropSession(sc *serverConn) {
	if sc.cleanStart && sc.version == MQTT311 {
		_ = s.config.sessions.Delete(sc.clientID)
	}
}

func generateClientID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "mqttcore-client"
	}
	return "auto-" + hex.EncodeToString(b[:])
}

// onInboundPublish bridges a client's PUBLISH into the router. The QoS
// handshake (PUBACK/PUBREC/PUBREL/PUBCOMP, duplicate suppression) has
// already run inside the endpoint by the time this fires.
func (sc *serverConn) onInboundPublish(msg *Message) {
	if sc.server.config.router == nil {
		return
	}
	if msg.QoS > sc.server.config.maxQoS {
		msg.QoS = sc.server.config.maxQoS
	}
	sc.server.config.router.Publish(sc.clientID, msg.Clone())
}

func (sc *serverConn) onSubscribe(pkt Packet) bool {
	sub, ok := pkt.(*SubscribePacket)
	if !ok {
		return true
	}

	codes := make([]ReasonCode, 0, len(sub.Subscriptions))
	isNew := make([]bool, len(sub.Subscriptions))
	for i, entry := range sub.Subscriptions {
		code, fresh := sc.addSubscription(entry)
		codes = append(codes, code)
		isNew[i] = fresh
	}

	ack := &SubackPacket{PacketID: sub.PacketID, ReasonCodes: codes}
	_, _ = sc.endpoint.writePacket(ack)

	// Retained messages go out after the SUBACK, per granted QoS.
	for i, entry := range sub.Subscriptions {
		if codes[i].IsError() {
			continue
		}
		sc.sendRetained(entry, codes[i], isNew[i])
	}
	return true
}

func (sc *serverConn) addSubscription(entry Subscription) (ReasonCode, bool) {
	if err := ValidateTopicFilter(entry.TopicFilter); err != nil {
		return ReasonTopicFilterInvalid, false
	}
	if entry.QoS > sc.server.config.maxQoS {
		entry.QoS = sc.server.config.maxQoS
	}

	granted := ReasonCode(entry.QoS)
	if router := sc.server.config.router; router != nil {
		granted = router.Subscribe(sc.clientID, entry, sc.deliver)
		if granted.IsError() {
			return granted, false
		}
	}

	entry.QoS = byte(granted)
	isNew, err := sc.session.Subscriptions().Add(entry)
	if err != nil {
		return ReasonTopicFilterInvalid, false
	}
	if isNew {
		sc.server.config.metrics.SubscriptionAdded()
	}
	return granted, isNew
}

func (sc *serverConn) sendRetained(entry Subscription, granted ReasonCode, isNew bool) {
	router := sc.server.config.router
	if router == nil {
		return
	}
	if !ShouldSendRetained(entry.RetainHandling, isNew) {
		return
	}
	for _, msg := range router.Retained(entry.TopicFilter) {
		out := msg.Clone()
		if out.QoS > byte(granted) {
			out.QoS = byte(granted)
		}
		out.Retain = true
		_ = sc.endpoint.Publish(out)
	}
}

func (sc *serverConn) onUnsubscribe(pkt Packet) bool {
	unsub, ok := pkt.(*UnsubscribePacket)
	if !ok {
		return true
	}

	codes := make([]ReasonCode, 0, len(unsub.TopicFilters))
	for _, filter := range unsub.TopicFilters {
		existed := sc.session.Subscriptions().Remove(filter)
		if router := sc.server.config.router; router != nil {
			existed = router.Unsubscribe(sc.clientID, filter) || existed
		}
		if existed {
			sc.server.config.metrics.SubscriptionRemoved()
			codes = append(codes, ReasonSuccess)
		} else {
			codes = append(codes, ReasonNoSubscriptionExisted)
		}
	}

	ack := &UnsubackPacket{PacketID: unsub.PacketID, ReasonCodes: codes}
	_, _ = sc.endpoint.writePacket(ack)
	return true
}

// deliver is the router's path into this connection: it downgrades to the
// granted QoS and applies the subscription's retain-as-published option.
func (sc *serverConn) deliver(msg *Message, sub Subscription) {
	out := msg.Clone()
	if out.QoS > sub.QoS {
		out.QoS = sub.QoS
	}
	out.Retain = DeliveryRetainFlag(sub, msg.Retain)
	if sub.SubscriptionID > 0 && sc.version == MQTT5 {
		out.SubscriptionIdentifiers = []uint32{sub.SubscriptionID}
	}
	_ = sc.endpoint.Publish(out)
}

// reattachSubscriptions re-registers a resumed session's filters with the
// router, whose registrations do not survive the previous connection.
func (sc *serverConn) reattachSubscriptions() {
	router := sc.server.config.router
	if router == nil {
		return
	}
	for _, sub := range sc.session.Subscriptions().All() {
		router.Subscribe(sc.clientID, sub, sc.deliver)
	}
}

// takeOver closes a connection displaced by a newer CONNECT with the same
// client id, telling a v5 client why.
func (sc *serverConn) takeOver() {
	if sc.version == MQTT5 {
		_, _ = sc.endpoint.writePacket(&DisconnectPacket{ReasonCode: ReasonSessionTakenOver})
	}
	_ = sc.endpoint.Close()
}

// teardown runs when the endpoint's dispatch loop exits: it publishes the
// will for ungraceful drops, detaches from the router, and either destroys
// or parks the session per its expiry policy.
func (sc *serverConn) teardown() {
	s := sc.server

	s.mu.Lock()
	wasCurrent := s.clients[sc.clientID] == sc
	if wasCurrent {
		delete(s.clients, sc.clientID)
	}
	s.mu.Unlock()
	s.config.metrics.ConnectionClosed()

	sc.maybePublishWill()

	// A connection displaced by takeover must not touch the successor's
	// router registrations or session.
	if !wasCurrent {
		return
	}

	if s.config.router != nil {
		s.config.router.Detach(sc.clientID)
	}

	expire := sc.cleanStart && sc.version == MQTT311
	if sc.version == MQTT5 && sc.sessionExpiry == 0 {
		expire = true
	}
	if expire {
		if current, err := s.config.sessions.Get(sc.clientID); err == nil && current == sc.session {
			_ = s.config.sessions.Delete(sc.clientID)
		}
		return
	}

	// The session survives; its expiry clock starts now and stops if the
	// client reconnects first.
	sc.session.SetExpiryTime(time.Now().Add(sc.sessionExpiry))
}

// maybePublishWill routes the session's will unless the client said
// goodbye properly: a v3.1.1 DISCONNECT always suppresses it, and a v5
// DISCONNECT suppresses it unless the reason is Disconnect with Will.
func (sc *serverConn) maybePublishWill() {
	will := sc.session.Will()
	if will == nil || sc.server.config.router == nil {
		return
	}

	if d := sc.endpoint.PeerDisconnect(); d != nil {
		if sc.version == MQTT311 || d.ReasonCode != ReasonDisconnectWithWill {
			sc.session.SetWill(nil)
			return
		}
	}

	msg := will.ToMessage()
	if will.DelayInterval > 0 {
		pending := NewPendingWill(sc.clientID, will)
		time.AfterFunc(pending.TimeUntilPublish(), func() {
			// The will is cancelled if the client reconnected while the
			// delay ran.
			sc.server.mu.Lock()
			_, reconnected := sc.server.clients[sc.clientID]
			sc.server.mu.Unlock()
			if !reconnected {
				sc.server.config.router.Publish("", msg)
			}
		})
	} else {
		sc.server.config.router.Publish("", msg)
	}
	sc.session.SetWill(nil)
}
