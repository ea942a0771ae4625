package ports

import (
	"context"
	"encoding/json"
	"time"

	"examcast/internal/core/domain"
)

// MediaEngine is the capability surface of the external WebRTC engine. The
// signaling core only ever talks to the engine through this interface.
type MediaEngine interface {
	CreateRouter(ctx context.Context) (domain.Router, error)
}

// Notifier delivers an envelope to a single client. Delivery is best-effort:
// a failed send is treated as a disconnect of the target by the transport
// layer and never surfaces to the caller's operation.
type Notifier interface {
	Send(clientID, messageType string, data any)
}

// RoomService is the signaling state machine: one method per protocol
// operation plus the disconnect cleanup path. Broadcasts triggered by an
// operation are emitted through the Notifier; direct replies are returned.
type RoomService interface {
	JoinRoom(ctx context.Context, clientID, roomID, username, role string) (*domain.RoomJoinedData, error)
	CreateTransport(ctx context.Context, clientID string, sender bool) (*domain.TransportCreatedData, error)
	ConnectTransport(ctx context.Context, clientID, transportID string, dtls domain.DtlsParameters) (*domain.TransportConnectedData, error)
	Produce(ctx context.Context, clientID, transportID string, kind domain.MediaKind, rtpParameters json.RawMessage) (*domain.ProducerCreatedData, error)
	Consume(ctx context.Context, clientID, transportID, producerID string, caps domain.RtpCapabilities) (*domain.ConsumerCreatedData, error)
	ResumeConsumer(ctx context.Context, clientID, consumerID string) (*domain.ConsumerResumedData, error)
	// Disconnect runs the full cleanup for a departed client. Safe to invoke
	// more than once for the same client ID; only the first call broadcasts
	// userLeft and releases resources.
	Disconnect(ctx context.Context, clientID string)
	// Stats reports live room and participant counts.
	Stats() (rooms, participants int)
}

// CreateExamInput carries the client-supplied fields of a new exam.
type CreateExamInput struct {
	Title        string
	Duration     int
	Questions    []map[string]any
	ScheduledFor time.Time
}

// ExamService manages scheduled exams and their join codes.
type ExamService interface {
	CreateExam(ctx context.Context, input CreateExamInput) (*domain.Exam, error)
	GetExam(ctx context.Context, id string) (*domain.Exam, error)
	ListExams(ctx context.Context) ([]*domain.Exam, error)
	UpdateStatus(ctx context.Context, id string, status domain.ExamStatus) (*domain.Exam, error)
}

// MetricsRecorder receives state-change notifications from the signaling
// core. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	RoomOpened()
	RoomClosed()
	ParticipantJoined()
	ParticipantLeft()
	TransportCreated()
	ProducerCreated(kind domain.MediaKind)
	ProducerClosed(kind domain.MediaKind)
	ConsumerCreated(kind domain.MediaKind)
	ConsumerClosed(kind domain.MediaKind)
	MessageHandled(messageType string)
	MessageFailed(messageType, code string)
	BroadcastSent(messageType string)
}

// NopMetrics is a MetricsRecorder that discards everything.
type NopMetrics struct{}

func (NopMetrics) RoomOpened()                      {}
func (NopMetrics) RoomClosed()                      {}
func (NopMetrics) ParticipantJoined()               {}
func (NopMetrics) ParticipantLeft()                 {}
func (NopMetrics) TransportCreated()                {}
func (NopMetrics) ProducerCreated(domain.MediaKind) {}
func (NopMetrics) ProducerClosed(domain.MediaKind)  {}
func (NopMetrics) ConsumerCreated(domain.MediaKind) {}
func (NopMetrics) ConsumerClosed(domain.MediaKind)  {}
func (NopMetrics) MessageHandled(string)            {}
func (NopMetrics) MessageFailed(string, string)     {}
func (NopMetrics) BroadcastSent(string)             {}
