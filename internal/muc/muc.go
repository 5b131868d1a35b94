package muc

import (
	"sync"

	"mellium.im/xmpp/jid"
)

// Room represents a multi-user chat room the client has joined or is
// joining.
type Room struct {
	JID      jid.JID
	Nick     string
	Password string
	Subject  string
	Joined   bool
}

// Invite is a received room invitation, kept until accepted or declined.
type Invite struct {
	Room     string
	Inviter  string
	Reason   string
	Password string
}

// Manager manages MUC rooms
type Manager struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	invites map[string]Invite
}

// NewManager creates a new MUC manager
func NewManager() *Manager {
	return &Manager{
		rooms:   make(map[string]*Room),
		invites: make(map[string]Invite),
	}
}

// Join records a room the client is joining.
func (m *Manager) Join(roomJID jid.JID, nick, password string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	bare := roomJID.Bare().String()
	room := &Room{
		JID:      roomJID.Bare(),
		Nick:     nick,
		Password: password,
	}
	m.rooms[bare] = room
	return room
}

// SetJoined marks a room as joined.
func (m *Manager) SetJoined(bareJID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[bareJID]; ok {
		room.Joined = true
	}
}

// Leave removes a room.
func (m *Manager) Leave(bareJID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, bareJID)
}

// Active reports whether the client currently considers the room joined.
func (m *Manager) Active(bareJID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[bareJID]
	return ok
}

// Room returns the room for a bare JID, or nil.
func (m *Manager) Room(bareJID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[bareJID]
}

// SetSubject stores the room subject.
func (m *Manager) SetSubject(bareJID, subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[bareJID]; ok {
		room.Subject = subject
	}
}

// Rooms returns all tracked rooms.
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// AddInvite stores a received invitation, keyed by room JID.
func (m *Manager) AddInvite(inv Invite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[inv.Room] = inv
}

// Invite returns a stored invitation for a room.
func (m *Manager) Invite(room string) (Invite, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[room]
	return inv, ok
}

// RemoveInvite drops a stored invitation.
func (m *Manager) RemoveInvite(room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, room)
}
