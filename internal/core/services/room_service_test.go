package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
	"examcast/internal/infrastructure/repositories/memory"
	apperrors "examcast/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Fake engine: routers, transports, producers and consumers that only track
// state, no networking.

type fakeRouter struct {
	id         string
	closed     bool
	seq        int
	producers  map[string]*fakeProducer
	lastPaused bool
}

func newFakeRouter(id string) *fakeRouter {
	return &fakeRouter{id: id, producers: make(map[string]*fakeProducer)}
}

func (r *fakeRouter) ID() string { return r.id }

func (r *fakeRouter) RtpCapabilities() domain.RtpCapabilities {
	return domain.RtpCapabilities{
		Codecs: []domain.RtpCodecCapability{
			{Kind: domain.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			{Kind: domain.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
		},
	}
}

func (r *fakeRouter) CreateTransport(context.Context) (domain.Transport, error) {
	r.seq++
	return &fakeTransport{id: fmt.Sprintf("%s-transport-%d", r.id, r.seq), router: r}, nil
}

func (r *fakeRouter) CanConsume(producerID string, caps domain.RtpCapabilities) bool {
	p, ok := r.producers[producerID]
	if !ok {
		return false
	}
	for _, codec := range caps.Codecs {
		if codec.Kind == p.kind {
			return true
		}
	}
	return false
}

func (r *fakeRouter) Close() { r.closed = true }

type fakeTransport struct {
	id        string
	router    *fakeRouter
	connected bool
	closed    bool
	seq       int
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) IceParameters() domain.IceParameters {
	return domain.IceParameters{UsernameFragment: "ufrag", Password: "pwd"}
}

func (t *fakeTransport) IceCandidates() []domain.IceCandidate {
	return []domain.IceCandidate{{Foundation: "1", Component: 1, Protocol: "udp", IP: "127.0.0.1", Port: 40000, Type: "host"}}
}

func (t *fakeTransport) DtlsParameters() domain.DtlsParameters {
	return domain.DtlsParameters{Role: "auto", Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}}}
}

func (t *fakeTransport) Connect(_ context.Context, _ domain.DtlsParameters) error {
	t.connected = true
	return nil
}

func (t *fakeTransport) Produce(_ context.Context, kind domain.MediaKind, _ json.RawMessage) (domain.Producer, error) {
	t.seq++
	p := &fakeProducer{id: fmt.Sprintf("%s-producer-%d", t.id, t.seq), kind: kind, router: t.router}
	t.router.producers[p.id] = p
	return p, nil
}

func (t *fakeTransport) Consume(_ context.Context, producerID string, _ domain.RtpCapabilities, paused bool) (domain.Consumer, error) {
	p, ok := t.router.producers[producerID]
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	t.seq++
	t.router.lastPaused = paused
	c := &fakeConsumer{id: fmt.Sprintf("%s-consumer-%d", t.id, t.seq), kind: p.kind, paused: paused}
	return c, nil
}

func (t *fakeTransport) Close() { t.closed = true }

type fakeProducer struct {
	id     string
	kind   domain.MediaKind
	router *fakeRouter
	closed bool
}

func (p *fakeProducer) ID() string             { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }
func (p *fakeProducer) Close() {
	p.closed = true
	delete(p.router.producers, p.id)
}

type fakeConsumer struct {
	id     string
	kind   domain.MediaKind
	paused bool
	closed bool
}

func (c *fakeConsumer) ID() string                     { return c.id }
func (c *fakeConsumer) Kind() domain.MediaKind         { return c.kind }
func (c *fakeConsumer) RtpParameters() json.RawMessage { return json.RawMessage(`{"codecs":[]}`) }
func (c *fakeConsumer) Paused() bool                   { return c.paused }
func (c *fakeConsumer) Resume(context.Context) error {
	c.paused = false
	return nil
}
func (c *fakeConsumer) Close() { c.closed = true }

type fakeEngine struct {
	mu      sync.Mutex
	seq     int
	routers []*fakeRouter
}

func (e *fakeEngine) CreateRouter(context.Context) (domain.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	r := newFakeRouter(fmt.Sprintf("router-%d", e.seq))
	e.routers = append(e.routers, r)
	return r, nil
}

// recordingNotifier captures every Send for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	ClientID string
	Type     string
	Data     any
}

func (n *recordingNotifier) Send(clientID, messageType string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, sentMessage{ClientID: clientID, Type: messageType, Data: data})
}

func (n *recordingNotifier) byType(messageType string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, s := range n.sends {
		if s.Type == messageType {
			out = append(out, s)
		}
	}
	return out
}

func newTestRoomService() (ports.RoomService, *fakeEngine, *recordingNotifier, ports.RoomDirectory) {
	engine := &fakeEngine{}
	notifier := &recordingNotifier{}
	directory := memory.NewRoomDirectory()
	svc := NewRoomService(directory, engine, notifier, ports.NopMetrics{}, zap.NewNop().Sugar())
	return svc, engine, notifier, directory
}

func TestJoinRoomCreatesRoomAndReturnsCapabilities(t *testing.T) {
	svc, engine, _, _ := newTestRoomService()

	data, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "examiner")
	require.NoError(t, err)

	assert.Equal(t, "room-1", data.RoomID)
	assert.Empty(t, data.Participants)
	assert.NotEmpty(t, data.RtpCapabilities.Codecs)
	assert.Len(t, engine.routers, 1)
}

func TestJoinRoomRequiresRoomID(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "", "alice", "")
	require.Error(t, err)
	assert.Equal(t, "Room ID is required", apperrors.GetAppError(err).Message)
}

func TestJoinRoomAnnouncesToOthersOnly(t *testing.T) {
	svc, _, notifier, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)

	data, err := svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	// The second joiner sees the first in the reply, not in a broadcast.
	require.Len(t, data.Participants, 1)
	assert.Equal(t, "client-1", data.Participants[0].ID)

	joins := notifier.byType(domain.MsgUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, "client-1", joins[0].ClientID)
	assert.Equal(t, domain.ParticipantInfo{ID: "client-2", Name: "bob"}, joins[0].Data)
}

func TestJoinRoomReusesExistingRouter(t *testing.T) {
	svc, engine, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	assert.Len(t, engine.routers, 1)
}

func TestCreateTransportRequiresMembership(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.CreateTransport(context.Background(), "nobody", true)
	require.Error(t, err)
	assert.Equal(t, "Not in a room", apperrors.GetAppError(err).Message)
}

func TestCreateAndConnectTransport(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)

	created, err := svc.CreateTransport(context.Background(), "client-1", true)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ufrag", created.IceParameters.UsernameFragment)
	assert.NotEmpty(t, created.IceCandidates)
	assert.NotEmpty(t, created.DtlsParameters.Fingerprints)

	connected, err := svc.ConnectTransport(context.Background(), "client-1", created.ID, domain.DtlsParameters{Role: "client"})
	require.NoError(t, err)
	assert.True(t, connected.Connected)
	assert.Equal(t, created.ID, connected.TransportID)
}

func TestConnectUnknownTransport(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)

	_, err = svc.ConnectTransport(context.Background(), "client-1", "missing", domain.DtlsParameters{})
	require.Error(t, err)
	assert.Equal(t, "Transport not found", apperrors.GetAppError(err).Message)
}

func TestProduceAnnouncesToOtherParticipants(t *testing.T) {
	svc, _, notifier, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	transport, err := svc.CreateTransport(context.Background(), "client-1", true)
	require.NoError(t, err)

	produced, err := svc.Produce(context.Background(), "client-1", transport.ID, domain.MediaKindVideo, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, produced.ID)

	announcements := notifier.byType(domain.MsgNewProducer)
	require.Len(t, announcements, 1)
	assert.Equal(t, "client-2", announcements[0].ClientID)
	assert.Equal(t, domain.NewProducerData{
		ProducerID:     produced.ID,
		ProducerUserID: "client-1",
		Kind:           domain.MediaKindVideo,
	}, announcements[0].Data)
}

func TestConsumeStartsPaused(t *testing.T) {
	svc, engine, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	sendTransport, err := svc.CreateTransport(context.Background(), "client-1", true)
	require.NoError(t, err)
	produced, err := svc.Produce(context.Background(), "client-1", sendTransport.ID, domain.MediaKindAudio, json.RawMessage(`{}`))
	require.NoError(t, err)

	recvTransport, err := svc.CreateTransport(context.Background(), "client-2", false)
	require.NoError(t, err)

	caps := engine.routers[0].RtpCapabilities()
	consumed, err := svc.Consume(context.Background(), "client-2", recvTransport.ID, produced.ID, caps)
	require.NoError(t, err)

	assert.Equal(t, produced.ID, consumed.ProducerID)
	assert.Equal(t, "client-1", consumed.ProducerUserID)
	assert.Equal(t, domain.MediaKindAudio, consumed.Kind)
	assert.True(t, engine.routers[0].lastPaused)

	resumed, err := svc.ResumeConsumer(context.Background(), "client-2", consumed.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, consumed.ID, resumed.ConsumerID)
}

func TestConsumeUnknownProducer(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	transport, err := svc.CreateTransport(context.Background(), "client-1", false)
	require.NoError(t, err)

	_, err = svc.Consume(context.Background(), "client-1", transport.ID, "missing", domain.RtpCapabilities{})
	require.Error(t, err)
	assert.Equal(t, "Producer not found", apperrors.GetAppError(err).Message)
}

func TestConsumeIncompatibleCapabilities(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	sendTransport, err := svc.CreateTransport(context.Background(), "client-1", true)
	require.NoError(t, err)
	produced, err := svc.Produce(context.Background(), "client-1", sendTransport.ID, domain.MediaKindVideo, json.RawMessage(`{}`))
	require.NoError(t, err)

	recvTransport, err := svc.CreateTransport(context.Background(), "client-2", false)
	require.NoError(t, err)

	audioOnly := domain.RtpCapabilities{
		Codecs: []domain.RtpCodecCapability{
			{Kind: domain.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		},
	}
	_, err = svc.Consume(context.Background(), "client-2", recvTransport.ID, produced.ID, audioOnly)
	require.Error(t, err)
	assert.Equal(t, "Cannot consume this producer", apperrors.GetAppError(err).Message)
}

func TestResumeUnknownConsumer(t *testing.T) {
	svc, _, _, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)

	_, err = svc.ResumeConsumer(context.Background(), "client-1", "missing")
	require.Error(t, err)
	assert.Equal(t, "Consumer not found", apperrors.GetAppError(err).Message)
}

func TestDisconnectBroadcastsUserLeftOnce(t *testing.T) {
	svc, _, notifier, _ := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	svc.Disconnect(context.Background(), "client-1")
	svc.Disconnect(context.Background(), "client-1")

	left := notifier.byType(domain.MsgUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "client-2", left[0].ClientID)
	assert.Equal(t, domain.UserLeftData{UserID: "client-1"}, left[0].Data)
}

func TestDisconnectReleasesResourcesAndClosesEmptyRoom(t *testing.T) {
	svc, engine, _, directory := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)

	transport, err := svc.CreateTransport(context.Background(), "client-1", true)
	require.NoError(t, err)
	_, err = svc.Produce(context.Background(), "client-1", transport.ID, domain.MediaKindAudio, json.RawMessage(`{}`))
	require.NoError(t, err)

	svc.Disconnect(context.Background(), "client-1")

	assert.True(t, engine.routers[0].closed)
	assert.Equal(t, 0, directory.Count())
	assert.Equal(t, 0, directory.Clients())

	// Joining the same room again builds a fresh router.
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)
	require.Len(t, engine.routers, 2)
	assert.False(t, engine.routers[1].closed)
}

func TestDisconnectKeepsRoomWithRemainingParticipants(t *testing.T) {
	svc, engine, _, directory := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	svc.Disconnect(context.Background(), "client-1")

	assert.False(t, engine.routers[0].closed)
	assert.Equal(t, 1, directory.Count())

	rooms, participants := svc.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, participants)
}

func TestRejoinDifferentRoomLeavesOldRoom(t *testing.T) {
	svc, _, notifier, directory := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), "client-1", "room-1", "alice", "")
	require.NoError(t, err)
	_, err = svc.JoinRoom(context.Background(), "client-2", "room-1", "bob", "")
	require.NoError(t, err)

	_, err = svc.JoinRoom(context.Background(), "client-1", "room-2", "alice", "")
	require.NoError(t, err)

	left := notifier.byType(domain.MsgUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "client-2", left[0].ClientID)
	assert.Equal(t, 2, directory.Count())
}
