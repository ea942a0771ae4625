package memory

import (
	"context"
	"sync"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
)

// RoomDirectory is the in-memory room registry. A single mutex guards both
// the room map and the client reverse index; the router factory for a new
// room and the joiner's membership registration both run inside the critical
// section, which makes room creation atomic with respect to concurrent
// joiners of the same room ID and a join atomic with respect to a concurrent
// empty-room removal.
type RoomDirectory struct {
	mu      sync.Mutex
	rooms   map[string]*domain.Room
	clients map[string]string // client id -> room id
}

func NewRoomDirectory() ports.RoomDirectory {
	return &RoomDirectory{
		rooms:   make(map[string]*domain.Room),
		clients: make(map[string]string),
	}
}

func (d *RoomDirectory) Join(ctx context.Context, roomID string, participant *domain.Participant, create ports.RouterFactory) (*domain.Room, bool, []domain.ParticipantInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	created := false
	if !ok {
		router, err := create(ctx)
		if err != nil {
			return nil, false, nil, err
		}
		room = domain.NewRoom(roomID, router)
		d.rooms[roomID] = room
		created = true
	}

	// Membership registration stays inside the critical section so that a
	// RemoveIfEmpty for the same room ID cannot interleave and orphan the
	// joiner.
	others := room.AddParticipant(participant)
	d.clients[participant.ID] = roomID
	return room, created, others, nil
}

func (d *RoomDirectory) FindRoomOf(clientID string) (*domain.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.clients[clientID]
	if !ok {
		return nil, false
	}
	room, ok := d.rooms[roomID]
	return room, ok
}

func (d *RoomDirectory) Unbind(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clients, clientID)
}

func (d *RoomDirectory) RemoveIfEmpty(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok || room.Size() > 0 {
		return false
	}
	delete(d.rooms, roomID)
	return true
}

func (d *RoomDirectory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *RoomDirectory) Clients() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}
