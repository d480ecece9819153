package session

import (
	"sync"
	"time"

	"github.com/classmesh/sfu/internal/domain"
)

type RoomInfo struct {
	ID      domain.RoomID `json:"id"`
	Clients int           `json:"client_count"`
	Active  bool          `json:"active"`
}

// Manager is the process-wide room registry.
type Manager struct {
	sfuID       domain.SfuID
	taskTimeout time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewManager(sfu domain.SfuID, taskTimeout time.Duration) *Manager {
	return &Manager{
		sfuID:       sfu,
		taskTimeout: taskTimeout,
		rooms:       make(map[domain.RoomID]*Room),
	}
}

func (m *Manager) GetOrCreate(id domain.RoomID) *Room {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room
	}
	room = NewRoom(id, m.sfuID, m.taskTimeout)
	m.rooms[id] = room
	return room
}

func (m *Manager) Get(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// Release drops the room from the registry and closes it.
func (m *Manager) Release(id domain.RoomID) {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	if ok {
		room.Close()
	}
}

func (m *Manager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo{ID: id, Clients: r.ClientCount(), Active: r.Active()})
	}
	return out
}

// Rooms snapshots the current room set for periodic sweeps.
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}
