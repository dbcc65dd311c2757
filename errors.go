package mqttcore

import "errors"

// Error taxonomy for the protocol engine. Codec and protocol violations are
// distinguished from transport failures so callers can tell "the peer sent
// garbage" from "the network went away".
var (
	// ErrMalformedPacket signals a codec-level violation: a bad variable byte
	// integer, invalid UTF-8, reserved bits set where the spec forbids it.
	ErrMalformedPacket = errors.New("mqttcore: malformed packet")

	// ErrProtocolError signals a well-formed packet that isn't allowed in the
	// current connection state (PUBLISH before CONNACK, duplicate CONNECT).
	ErrProtocolError = errors.New("mqttcore: protocol error")

	// ErrPacketTooLarge signals a remaining length beyond the negotiated
	// maximum packet size (v5) or the 256 MiB v3.1.1 ceiling.
	ErrPacketTooLarge = errors.New("mqttcore: packet too large")

	// ErrIdentifierRejected signals the server refused the client identifier.
	ErrIdentifierRejected = errors.New("mqttcore: identifier rejected")

	// ErrTransport wraps underlying stream failures (EOF, reset, TLS failure).
	ErrTransport = errors.New("mqttcore: transport error")

	// ErrTimeout signals a keep-alive or disconnect-timeout expiry.
	ErrTimeout = errors.New("mqttcore: timeout")

	// ErrPacketIDInUse signals an Acquired* call naming a packet id already live.
	ErrPacketIDInUse = errors.New("mqttcore: packet id in use")
)
