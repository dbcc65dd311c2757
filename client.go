package mqttcore

import (
	"context"
	"crypto/tls"
	"time"
)

// clientOptions holds configuration for Dial. Reconnect/backoff policy and
// server discovery belong to a layer above this library; an Endpoint drives
// exactly one connection.
type clientOptions struct {
	clientID         string
	username         string
	password         []byte
	keepAlive        uint16
	cleanStart       bool
	sessionExpirySec uint32
	idWidth          IDWidth

	tlsConfig *tls.Config

	connectTimeout time.Duration

	will *WillMessage

	logger  Logger
	metrics *EndpointMetrics
	ackMode AckMode

	onPublish MessageHandler
	onError   func(error)
	onClose   func()
}

func defaultClientOptions() *clientOptions {
	return &clientOptions{
		keepAlive:      60,
		cleanStart:     true,
		idWidth:        IDWidth16,
		connectTimeout: 10 * time.Second,
		logger:         NewNoOpLogger(),
	}
}

// ClientOption configures Dial.
type ClientOption func(*clientOptions)

func WithClientID(id string) ClientOption {
	return func(o *clientOptions) { o.clientID = id }
}

func WithCredentials(username string, password []byte) ClientOption {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}

func WithKeepAlive(seconds uint16) ClientOption {
	return func(o *clientOptions) { o.keepAlive = seconds }
}

func WithCleanStart(clean bool) ClientOption {
	return func(o *clientOptions) { o.cleanStart = clean }
}

// WithClientSessionExpiry asks a v5 server to retain the session for the
// given number of seconds after disconnect. Ignored under v3.1.1, where
// session retention is the server's policy.
func WithClientSessionExpiry(seconds uint32) ClientOption {
	return func(o *clientOptions) { o.sessionExpirySec = seconds }
}

func WithPacketIDSize(bits int) ClientOption {
	return func(o *clientOptions) {
		if bits == 32 {
			o.idWidth = IDWidth32
		} else {
			o.idWidth = IDWidth16
		}
	}
}

func WithClientTLS(config *tls.Config) ClientOption {
	return func(o *clientOptions) { o.tlsConfig = config }
}

func WithConnectTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.connectTimeout = d }
}

func WithClientWill(will *WillMessage) ClientOption {
	return func(o *clientOptions) { o.will = will }
}

func WithClientLogger(l Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

func WithClientMetrics(m *EndpointMetrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

func WithClientAckMode(mode AckMode) ClientOption {
	return func(o *clientOptions) { o.ackMode = mode }
}

func WithClientOnPublish(h MessageHandler) ClientOption {
	return func(o *clientOptions) { o.onPublish = h }
}

func WithClientOnError(h func(error)) ClientOption {
	return func(o *clientOptions) { o.onError = h }
}

func WithClientOnClose(h func()) ClientOption {
	return func(o *clientOptions) { o.onClose = h }
}

// Dial opens a transport-level connection via dialer, performs the
// CONNECT/CONNACK handshake over it at the given protocol version, and
// returns a connected Endpoint. The caller must still invoke Run (usually
// in its own goroutine) to drive the dispatch loop.
func Dial(ctx context.Context, dialer Dialer, address string, version ProtocolVersion, opts ...ClientOption) (*Endpoint, *ConnackPacket, error) {
	o := defaultClientOptions()
	for _, opt := range opts {
		opt(o)
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if o.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, o.connectTimeout)
		defer cancel()
	}

	conn, err := dialer.Dial(dialCtx, address)
	if err != nil {
		return nil, nil, err
	}

	session := NewMemorySessionWithWidth(o.clientID, o.idWidth)
	if o.will != nil {
		session.SetWill(o.will)
	}

	endpoint := NewEndpoint(conn, session, version, RoleClient,
		WithLogger(o.logger),
		WithAckMode(o.ackMode),
		WithOnPublish(o.onPublish),
		WithOnError(o.onError),
		WithOnClose(o.onClose),
	)
	if o.metrics != nil {
		WithMetrics(o.metrics)(endpoint)
	}

	connect := &ConnectPacket{
		ClientID:   o.clientID,
		CleanStart: o.cleanStart,
		KeepAlive:  o.keepAlive,
		Username:   o.username,
		Password:   o.password,
	}
	if version == MQTT5 {
		expiry := o.sessionExpirySec
		if expiry == 0 && !o.cleanStart {
			// Resuming later is the whole point of a non-clean connect;
			// absent an explicit choice, ask for an hour of retention.
			expiry = 3600
		}
		if expiry > 0 {
			connect.Props.Set(PropSessionExpiryInterval, expiry)
		}
	}
	if o.will != nil {
		connect.WillFlag = true
		connect.WillTopic = o.will.Topic
		connect.WillPayload = o.will.Payload
		connect.WillQoS = o.will.QoS
		connect.WillRetain = o.will.Retain
	}

	ack, err := endpoint.Connect(ctx, connect)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return endpoint, ack, nil
}

// DialTCP is a convenience wrapper around Dial using a plain TCPDialer.
func DialTCP(ctx context.Context, address string, version ProtocolVersion, opts ...ClientOption) (*Endpoint, *ConnackPacket, error) {
	return Dial(ctx, &TCPDialer{}, address, version, opts...)
}

// DialTLS is a convenience wrapper around Dial using a TLSDialer.
func DialTLS(ctx context.Context, address string, config *tls.Config, version ProtocolVersion, opts ...ClientOption) (*Endpoint, *ConnackPacket, error) {
	return Dial(ctx, &TLSDialer{Config: config}, address, version, opts...)
}
