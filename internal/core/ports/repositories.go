package ports

import (
	"context"

	"examcast/internal/core/domain"
)

// RouterFactory creates the router for a new room. The directory invokes it
// inside its critical section so that concurrent joiners of the same new room
// ID can never create two routers.
type RouterFactory func(ctx context.Context) (domain.Router, error)

// RoomDirectory creates rooms on demand, resolves which room a client is in
// and deletes rooms that become empty.
type RoomDirectory interface {
	// Join resolves the room with the given ID, creating it (and its router)
	// if absent, and registers the participant as a member — all inside the
	// directory's critical section, so a concurrent RemoveIfEmpty can never
	// delete the room between resolution and membership. The created result
	// reports whether the room was built by this call; others is a snapshot
	// of the members present before the participant was inserted.
	Join(ctx context.Context, roomID string, participant *domain.Participant, create RouterFactory) (room *domain.Room, created bool, others []domain.ParticipantInfo, err error)
	// FindRoomOf resolves the room a client currently belongs to.
	FindRoomOf(clientID string) (*domain.Room, bool)
	// Unbind removes the client -> room association; idempotent.
	Unbind(clientID string)
	// RemoveIfEmpty deletes the room when its participant count is zero and
	// reports whether it was removed. The check runs under the same mutex
	// Join holds, so it cannot race a join into the same room ID.
	RemoveIfEmpty(roomID string) bool
	// Count returns the number of live rooms.
	Count() int
	// Clients returns the number of clients currently bound to a room.
	Clients() int
}

// ExamRepository stores scheduled exams.
type ExamRepository interface {
	Create(ctx context.Context, exam *domain.Exam) error
	GetByID(ctx context.Context, id string) (*domain.Exam, error)
	List(ctx context.Context) ([]*domain.Exam, error)
	Update(ctx context.Context, exam *domain.Exam) error
	CodeInUse(ctx context.Context, code string) (bool, error)
}
