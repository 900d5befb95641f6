package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// RoomManager tracks which live connections are subscribed to which
// conversation rooms. Pure membership index; the participant check
// happens in the hub before Join is ever called.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*Client]struct{}
	joined map[*Client]map[uuid.UUID]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:  make(map[uuid.UUID]map[*Client]struct{}),
		joined: make(map[*Client]map[uuid.UUID]struct{}),
	}
}

// Join subscribes the connection to the room. Joining twice is a no-op.
func (m *RoomManager) Join(c *Client, conversationID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		m.rooms[conversationID] = room
	}
	room[c] = struct{}{}

	joined, ok := m.joined[c]
	if !ok {
		joined = make(map[uuid.UUID]struct{})
		m.joined[c] = joined
	}
	joined[conversationID] = struct{}{}
}

// Leave is idempotent; leaving a room never joined is a no-op.
func (m *RoomManager) Leave(c *Client, conversationID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(c, conversationID)
}

func (m *RoomManager) leaveLocked(c *Client, conversationID uuid.UUID) {
	if room, ok := m.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(m.rooms, conversationID)
		}
	}
	if joined, ok := m.joined[c]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(m.joined, c)
		}
	}
}

// DropAll removes every membership the connection holds. Called on
// unregister.
func (m *RoomManager) DropAll(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for conversationID := range m.joined[c] {
		m.leaveLocked(c, conversationID)
	}
	delete(m.joined, c)
}

// Members returns a snapshot of the connections currently in the room.
func (m *RoomManager) Members(conversationID uuid.UUID) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[conversationID]
	out := make([]*Client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// InRoom reports whether the connection is currently subscribed.
func (m *RoomManager) InRoom(c *Client, conversationID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.joined[c][conversationID]
	return ok
}
