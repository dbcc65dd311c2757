package mqttcore

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("mqttcore: session not found")
	ErrSessionExists   = errors.New("mqttcore: session already exists")
)

// Credentials holds the username/password a client authenticated with, so
// a persisted session can be inspected by an authorizer without re-reading
// the original CONNECT packet.
type Credentials struct {
	Username string
	Password []byte
}

// Session is one client's persistent state across connections: its
// subscriptions, in-flight QoS handshakes, packet-id allocation, and will.
// The InFlightStore is the single source of truth for mid-handshake
// packets, with QoSEngine/QoS1Tracker/QoS2Tracker layered on top of it.
type Session interface {
	ClientID() string
	ProtocolVersion() ProtocolVersion
	SetProtocolVersion(v ProtocolVersion)

	Credentials() Credentials
	SetCredentials(c Credentials)

	Will() *WillMessage
	SetWill(w *WillMessage)

	Subscriptions() *SubscriptionTable

	PacketIDs() *PacketIDManager
	InFlight() *InFlightStore
	QoS() *QoSEngine

	ExpiryTime() time.Time
	SetExpiryTime(t time.Time)
	IsExpired() bool

	CreatedAt() time.Time
	LastActivity() time.Time
	UpdateLastActivity()
}

// SessionStore persists sessions across Endpoint lifetimes so a client
// with CleanStart=false can resume its subscriptions and in-flight
// handshakes after reconnecting.
type SessionStore interface {
	Create(session Session) error
	Get(clientID string) (Session, error)
	Update(session Session) error
	Delete(clientID string) error
	List() []Session
	Cleanup() int
}

// SessionExpiryHandler is invoked when SessionStore.Cleanup reaps an
// expired session, typically to publish its will if one hasn't fired yet.
type SessionExpiryHandler func(session Session)

// SessionFactory constructs a new Session for a client id, letting a
// Server plug in a custom Session implementation (e.g. backed by a
// database) without changing its dispatch code.
type SessionFactory func(clientID string) Session

// DefaultSessionFactory returns a factory producing MemorySession values.
func DefaultSessionFactory() SessionFactory {
	return func(clientID string) Session {
		return NewMemorySession(clientID)
	}
}
