package mqttcore

import (
	"sync"
	"time"
)

// MemorySession is the default in-memory Session implementation.
type MemorySession struct {
	clientID string

	mu          sync.RWMutex
	version     ProtocolVersion
	credentials Credentials
	will        *WillMessage

	subs      *SubscriptionTable
	packetIDs *PacketIDManager
	inflight  *InFlightStore
	qos       *QoSEngine

	expiryTime   time.Time
	createdAt    time.Time
	lastActivity time.Time
}

// NewMemorySession creates an in-memory session for clientID with a
// 16-bit packet-id space. Use NewMemorySessionWithWidth to name the width.
func NewMemorySession(clientID string) *MemorySession {
	return NewMemorySessionWithWidth(clientID, IDWidth16)
}

// NewMemorySessionWithWidth creates an in-memory session with an explicit
// packet-id width.
func NewMemorySessionWithWidth(clientID string, width IDWidth) *MemorySession {
	now := time.Now()
	store := NewInFlightStore()
	return &MemorySession{
		clientID:     clientID,
		version:      MQTT5,
		subs:         NewSubscriptionTable(),
		packetIDs:    NewPacketIDManager(width),
		inflight:     store,
		qos:          NewQoSEngine(store),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *MemorySession) ClientID() string { return s.clientID }

func (s *MemorySession) ProtocolVersion() ProtocolVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *MemorySession) SetProtocolVersion(v ProtocolVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

func (s *MemorySession) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials
}

func (s *MemorySession) SetCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = c
}

func (s *MemorySession) Will() *WillMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.will
}

func (s *MemorySession) SetWill(w *WillMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.will = w
}

func (s *MemorySession) Subscriptions() *SubscriptionTable { return s.subs }
func (s *MemorySession) PacketIDs() *PacketIDManager       { return s.packetIDs }
func (s *MemorySession) InFlight() *InFlightStore          { return s.inflight }
func (s *MemorySession) QoS() *QoSEngine                   { return s.qos }

func (s *MemorySession) ExpiryTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiryTime
}

func (s *MemorySession) SetExpiryTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiryTime = t
}

func (s *MemorySession) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiryTime.IsZero() {
		return false
	}
	return time.Now().After(s.expiryTime)
}

func (s *MemorySession) CreatedAt() time.Time { return s.createdAt }

func (s *MemorySession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *MemorySession) UpdateLastActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// MemorySessionStore is the default in-memory SessionStore.
type MemorySessionStore struct {
	mu            sync.RWMutex
	sessions      map[string]Session
	expiryHandler SessionExpiryHandler
}

// NewMemorySessionStore returns an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// SetExpiryHandler registers the callback invoked by Cleanup for each
// reaped session.
func (s *MemorySessionStore) SetExpiryHandler(handler SessionExpiryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiryHandler = handler
}

func (s *MemorySessionStore) Create(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ClientID()]; ok {
		return ErrSessionExists
	}
	s.sessions[session.ClientID()] = session
	return nil
}

func (s *MemorySessionStore) Get(clientID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[clientID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) Update(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ClientID()]; !ok {
		return ErrSessionNotFound
	}
	s.sessions[session.ClientID()] = session
	return nil
}

func (s *MemorySessionStore) Delete(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[clientID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, clientID)
	return nil
}

func (s *MemorySessionStore) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (s *MemorySessionStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Session
	for _, session := range s.sessions {
		if session.IsExpired() {
			expired = append(expired, session)
		}
	}

	for _, session := range expired {
		delete(s.sessions, session.ClientID())
		if s.expiryHandler != nil {
			s.expiryHandler(session)
		}
	}

	return len(expired)
}
