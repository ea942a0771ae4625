package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"examcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRouter struct {
	id string
}

func (r *stubRouter) ID() string                                     { return r.id }
func (r *stubRouter) RtpCapabilities() domain.RtpCapabilities        { return domain.RtpCapabilities{} }
func (r *stubRouter) CanConsume(string, domain.RtpCapabilities) bool { return false }
func (r *stubRouter) Close()                                         {}
func (r *stubRouter) CreateTransport(context.Context) (domain.Transport, error) {
	return nil, nil
}

func TestJoinConcurrentSingleRouter(t *testing.T) {
	directory := NewRoomDirectory()

	var created int64
	factory := func(context.Context) (domain.Router, error) {
		n := atomic.AddInt64(&created, 1)
		return &stubRouter{id: fmt.Sprintf("router-%d", n)}, nil
	}

	const joiners = 32
	rooms := make([]*domain.Room, joiners)

	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clientID := fmt.Sprintf("client-%d", i)
			room, _, _, err := directory.Join(context.Background(), "exam-room", domain.NewParticipant(clientID, clientID, ""), factory)
			assert.NoError(t, err)
			rooms[i] = room
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&created))
	for i := 1; i < joiners; i++ {
		assert.Same(t, rooms[0], rooms[i])
	}
	assert.Equal(t, joiners, rooms[0].Size())
	assert.Equal(t, joiners, directory.Clients())
}

func TestJoinReportsCreationAndMembers(t *testing.T) {
	directory := NewRoomDirectory()
	factory := func(context.Context) (domain.Router, error) {
		return &stubRouter{id: "router-1"}, nil
	}

	room, created, others, err := directory.Join(context.Background(), "room-1", domain.NewParticipant("client-1", "alice", ""), factory)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, others)

	_, created, others, err = directory.Join(context.Background(), "room-1", domain.NewParticipant("client-2", "bob", ""), factory)
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, others, 1)
	assert.Equal(t, "client-1", others[0].ID)
	assert.Equal(t, 1, directory.Count())

	found, ok := directory.FindRoomOf("client-1")
	require.True(t, ok)
	assert.Same(t, room, found)

	directory.Unbind("client-1")
	_, ok = directory.FindRoomOf("client-1")
	assert.False(t, ok)
	directory.Unbind("client-1") // idempotent
	assert.Equal(t, 1, directory.Clients())
}

func TestJoinFactoryError(t *testing.T) {
	directory := NewRoomDirectory()
	factory := func(context.Context) (domain.Router, error) {
		return nil, fmt.Errorf("engine down")
	}

	_, _, _, err := directory.Join(context.Background(), "room-1", domain.NewParticipant("client-1", "alice", ""), factory)
	require.Error(t, err)
	assert.Equal(t, 0, directory.Count())
	assert.Equal(t, 0, directory.Clients())
}

func TestRemoveIfEmpty(t *testing.T) {
	directory := NewRoomDirectory()
	factory := func(context.Context) (domain.Router, error) {
		return &stubRouter{id: "router-1"}, nil
	}

	room, _, _, err := directory.Join(context.Background(), "room-1", domain.NewParticipant("client-1", "alice", ""), factory)
	require.NoError(t, err)

	assert.False(t, directory.RemoveIfEmpty("room-1"), "occupied room must not be removed")

	room.RemoveParticipant("client-1")
	directory.Unbind("client-1")
	assert.True(t, directory.RemoveIfEmpty("room-1"))
	assert.False(t, directory.RemoveIfEmpty("room-1"), "already removed")
	assert.Equal(t, 0, directory.Count())
}

func TestJoinRacingEmptyRoomRemoval(t *testing.T) {
	// A joiner resolving a room while its last member is leaving must end up
	// either in that room (the removal sees size one and backs off) or in a
	// freshly created one; it can never land in a room the directory has
	// already dropped.
	for i := 0; i < 200; i++ {
		directory := NewRoomDirectory()
		factory := func(context.Context) (domain.Router, error) {
			return &stubRouter{id: "router-1"}, nil
		}

		room, _, _, err := directory.Join(context.Background(), "room-1", domain.NewParticipant("leaver", "alice", ""), factory)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		var joined *domain.Room
		go func() {
			defer wg.Done()
			room.RemoveParticipant("leaver")
			directory.Unbind("leaver")
			directory.RemoveIfEmpty("room-1")
		}()
		go func() {
			defer wg.Done()
			r, _, _, err := directory.Join(context.Background(), "room-1", domain.NewParticipant("joiner", "bob", ""), factory)
			assert.NoError(t, err)
			joined = r
		}()
		wg.Wait()

		found, ok := directory.FindRoomOf("joiner")
		require.True(t, ok, "joiner must stay resolvable after the leave completes")
		assert.Same(t, joined, found)
		assert.Equal(t, 1, found.Size())
		assert.Equal(t, 1, directory.Count())
		assert.Equal(t, 1, directory.Clients())
	}
}
