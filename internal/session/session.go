package session

import "sync"

// Session tracks an active one-to-one conversation with a peer: the
// resource we are currently talking to and whether typing notifications
// should be sent to it.
type Session struct {
	BareJID    string
	Resource   string
	SendStates bool
}

// Manager manages chat sessions, keyed by the peer's bare JID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for a bare JID, or nil if none exists.
func (m *Manager) Get(bareJID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[bareJID]
}

// Set creates or updates the session for a bare JID.
func (m *Manager) Set(bareJID, resource string, sendStates bool) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[bareJID]
	if !ok {
		s = &Session{BareJID: bareJID}
		m.sessions[bareJID] = s
	}
	s.Resource = resource
	s.SendStates = sendStates
	return s
}

// Remove drops the session for a bare JID.
func (m *Manager) Remove(bareJID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, bareJID)
}

// Exists reports whether a session is tracked for the bare JID.
func (m *Manager) Exists(bareJID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[bareJID]
	return ok
}

// All returns every tracked session.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Clear drops every session.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
}
