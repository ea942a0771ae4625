package services

import (
	"context"
	"encoding/json"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
	apperrors "examcast/pkg/errors"

	"go.uber.org/zap"
)

// roomService drives the room/participant/transport/producer/consumer state
// machine. All room state lives behind the RoomDirectory and the Room's own
// locks; broadcasts are sent over snapshots of participant IDs, strictly
// outside those locks.
type roomService struct {
	directory ports.RoomDirectory
	engine    ports.MediaEngine
	notifier  ports.Notifier
	metrics   ports.MetricsRecorder

	logger *zap.SugaredLogger
}

func NewRoomService(
	directory ports.RoomDirectory,
	engine ports.MediaEngine,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) ports.RoomService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &roomService{
		directory: directory,
		engine:    engine,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *roomService) JoinRoom(ctx context.Context, clientID, roomID, username, role string) (*domain.RoomJoinedData, error) {
	if roomID == "" {
		return nil, apperrors.NewValidationError("Room ID is required")
	}

	// A client re-joining while still a member of another room leaves that
	// room first, so its old state cannot leak.
	if current, ok := s.directory.FindRoomOf(clientID); ok && current.ID != roomID {
		s.leaveRoom(ctx, clientID, current)
	}

	participant := domain.NewParticipant(clientID, username, role)
	room, created, others, err := s.directory.Join(ctx, roomID, participant, s.engine.CreateRouter)
	if err != nil {
		return nil, apperrors.NewEngineError("creating router", err)
	}
	if created {
		s.metrics.RoomOpened()
		s.logger.Infow("room created", "room_id", roomID, "router_id", room.Router.ID())
	}
	s.metrics.ParticipantJoined()

	s.logger.Infow("participant joined room",
		"client_id", clientID,
		"room_id", roomID,
		"username", username,
		"role", role,
		"peers", len(others),
	)

	for _, other := range others {
		s.notifier.Send(other.ID, domain.MsgUserJoined, participant.Info())
		s.metrics.BroadcastSent(domain.MsgUserJoined)
	}

	return &domain.RoomJoinedData{
		RoomID:          roomID,
		Participants:    others,
		RtpCapabilities: room.Router.RtpCapabilities(),
	}, nil
}

func (s *roomService) CreateTransport(ctx context.Context, clientID string, sender bool) (*domain.TransportCreatedData, error) {
	room, ok := s.directory.FindRoomOf(clientID)
	if !ok {
		return nil, apperrors.NewNotInRoomError()
	}

	transport, err := room.Router.CreateTransport(ctx)
	if err != nil {
		return nil, apperrors.NewEngineError("creating transport", err)
	}

	if !room.AddTransport(clientID, transport, sender) {
		// Participant disconnected between lookup and insertion.
		transport.Close()
		return nil, apperrors.NewNotInRoomError()
	}
	s.metrics.TransportCreated()

	s.logger.Infow("transport created",
		"client_id", clientID,
		"room_id", room.ID,
		"transport_id", transport.ID(),
		"sender", sender,
	)

	return &domain.TransportCreatedData{
		ID:             transport.ID(),
		IceParameters:  transport.IceParameters(),
		IceCandidates:  transport.IceCandidates(),
		DtlsParameters: transport.DtlsParameters(),
	}, nil
}

func (s *roomService) ConnectTransport(ctx context.Context, clientID, transportID string, dtls domain.DtlsParameters) (*domain.TransportConnectedData, error) {
	room, ok := s.directory.FindRoomOf(clientID)
	if !ok {
		return nil, apperrors.NewNotInRoomError()
	}

	entry, ok := room.Transport(clientID, transportID)
	if !ok {
		return nil, apperrors.NewNotFoundError("Transport")
	}

	if err := entry.Transport.Connect(ctx, dtls); err != nil {
		return nil, apperrors.NewEngineError("connecting transport", err)
	}

	return &domain.TransportConnectedData{TransportID: transportID, Connected: true}, nil
}

func (s *roomService) Produce(ctx context.Context, clientID, transportID string, kind domain.MediaKind, rtpParameters json.RawMessage) (*domain.ProducerCreatedData, error) {
	room, ok := s.directory.FindRoomOf(clientID)
	if !ok {
		return nil, apperrors.NewNotInRoomError()
	}

	entry, ok := room.Transport(clientID, transportID)
	if !ok {
		return nil, apperrors.NewNotFoundError("Transport")
	}

	producer, err := entry.Transport.Produce(ctx, kind, rtpParameters)
	if err != nil {
		return nil, apperrors.NewEngineError("producing", err)
	}

	if !room.AddProducer(clientID, producer) {
		producer.Close()
		return nil, apperrors.NewNotInRoomError()
	}
	s.metrics.ProducerCreated(kind)

	s.logger.Infow("producer created",
		"client_id", clientID,
		"room_id", room.ID,
		"producer_id", producer.ID(),
		"kind", kind,
	)

	announcement := domain.NewProducerData{
		ProducerID:     producer.ID(),
		ProducerUserID: clientID,
		Kind:           kind,
	}
	for _, id := range room.ParticipantIDs(clientID) {
		s.notifier.Send(id, domain.MsgNewProducer, announcement)
		s.metrics.BroadcastSent(domain.MsgNewProducer)
	}

	return &domain.ProducerCreatedData{ID: producer.ID()}, nil
}

func (s *roomService) Consume(ctx context.Context, clientID, transportID, producerID string, caps domain.RtpCapabilities) (*domain.ConsumerCreatedData, error) {
	room, ok := s.directory.FindRoomOf(clientID)
	if !ok {
		return nil, apperrors.NewNotInRoomError()
	}

	_, producerOwner, found := room.FindProducer(producerID)
	if !found {
		return nil, apperrors.NewNotFoundError("Producer")
	}

	entry, ok := room.Transport(clientID, transportID)
	if !ok {
		return nil, apperrors.NewNotFoundError("Transport")
	}

	if !room.Router.CanConsume(producerID, caps) {
		return nil, apperrors.NewNegotiationError("Cannot consume this producer")
	}

	consumer, err := entry.Transport.Consume(ctx, producerID, caps, true)
	if err != nil {
		return nil, apperrors.NewEngineError("consuming", err)
	}

	if !room.AddConsumer(clientID, consumer) {
		consumer.Close()
		return nil, apperrors.NewNotInRoomError()
	}
	s.metrics.ConsumerCreated(consumer.Kind())

	s.logger.Infow("consumer created",
		"client_id", clientID,
		"room_id", room.ID,
		"consumer_id", consumer.ID(),
		"producer_id", producerID,
		"producer_user_id", producerOwner,
	)

	return &domain.ConsumerCreatedData{
		ID:             consumer.ID(),
		ProducerID:     producerID,
		Kind:           consumer.Kind(),
		RtpParameters:  consumer.RtpParameters(),
		ProducerUserID: producerOwner,
	}, nil
}

func (s *roomService) ResumeConsumer(ctx context.Context, clientID, consumerID string) (*domain.ConsumerResumedData, error) {
	room, ok := s.directory.FindRoomOf(clientID)
	if !ok {
		return nil, apperrors.NewNotInRoomError()
	}

	consumer, ok := room.Consumer(clientID, consumerID)
	if !ok {
		return nil, apperrors.NewNotFoundError("Consumer")
	}

	if err := consumer.Resume(ctx); err != nil {
		return nil, apperrors.NewEngineError("resuming consumer", err)
	}

	return &domain.ConsumerResumedData{ConsumerID: consumerID, Resumed: true}, nil
}

func (s *roomService) Disconnect(ctx context.Context, clientID string) {
	room, ok := s.directory.FindRoomOf(clientID)
	if !ok {
		s.directory.Unbind(clientID)
		return
	}
	s.leaveRoom(ctx, clientID, room)
}

func (s *roomService) Stats() (rooms, participants int) {
	return s.directory.Count(), s.directory.Clients()
}

// leaveRoom removes the participant from the room, notifies the remaining
// members, releases the participant's engine resources and deletes the room
// if it became empty. Removal is atomic, so concurrent invocations for the
// same client produce a single userLeft broadcast.
func (s *roomService) leaveRoom(ctx context.Context, clientID string, room *domain.Room) {
	participant, remaining := room.RemoveParticipant(clientID)
	s.directory.Unbind(clientID)
	if participant == nil {
		return
	}
	s.metrics.ParticipantLeft()

	for _, id := range remaining {
		s.notifier.Send(id, domain.MsgUserLeft, domain.UserLeftData{UserID: clientID})
		s.metrics.BroadcastSent(domain.MsgUserLeft)
	}

	// Release engine resources: consumers first, then producers, then the
	// transports that own them.
	for id, consumer := range participant.Consumers {
		consumer.Close()
		s.metrics.ConsumerClosed(consumer.Kind())
		s.logger.Debugw("consumer closed", "client_id", clientID, "consumer_id", id)
	}
	for id, producer := range participant.Producers {
		producer.Close()
		s.metrics.ProducerClosed(producer.Kind())
		s.logger.Debugw("producer closed", "client_id", clientID, "producer_id", id)
	}
	for id, entry := range participant.Transports {
		entry.Transport.Close()
		s.logger.Debugw("transport closed", "client_id", clientID, "transport_id", id)
	}

	s.logger.Infow("participant left room",
		"client_id", clientID,
		"room_id", room.ID,
		"remaining", len(remaining),
	)

	if s.directory.RemoveIfEmpty(room.ID) {
		room.Router.Close()
		s.metrics.RoomClosed()
		s.logger.Infow("room closed", "room_id", room.ID)
	}
}
