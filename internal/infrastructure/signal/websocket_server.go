package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"examcast/internal/core/domain"
	"examcast/internal/core/ports"
	apperrors "examcast/pkg/errors"
	"examcast/pkg/tracing"
	"examcast/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RateLimit bounds the inbound message stream of a single connection.
// A zero value disables limiting.
type RateLimit struct {
	MessagesPerSecond float64
	Burst             int
	MaxMessageBytes   int64
}

// WebSocketServer owns the signaling endpoint. Each connection gets a fresh
// client ID; all room state changes go through the room service.
type WebSocketServer struct {
	rooms    ports.RoomService
	registry *Registry
	metrics  ports.MetricsRecorder

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	rateLimit    RateLimit

	logger *zap.SugaredLogger
}

func NewWebSocketServer(rooms ports.RoomService, registry *Registry, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		rooms:        rooms,
		registry:     registry,
		metrics:      metrics,
		pingInterval: 30 * time.Second, // Default ping interval
		readTimeout:  60 * time.Second, // Default read timeout
		writeTimeout: 10 * time.Second, // Default write timeout
		logger:       logger,
	}
}

// SetTimeouts overrides the connection keepalive timings.
func (s *WebSocketServer) SetTimeouts(pingInterval, readTimeout, writeTimeout time.Duration) {
	s.pingInterval = pingInterval
	s.readTimeout = readTimeout
	s.writeTimeout = writeTimeout
}

// SetRateLimit enables per-connection inbound message limiting.
func (s *WebSocketServer) SetRateLimit(rl RateLimit) {
	s.rateLimit = rl
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinRoomPayload struct {
	Room     string `json:"room"`
	RoomID   string `json:"roomId"` // accepted as an alias for room
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (p joinRoomPayload) roomID() string {
	if p.Room != "" {
		return p.Room
	}
	return p.RoomID
}

type createTransportPayload struct {
	Sender bool `json:"sender"`
}

type connectTransportPayload struct {
	TransportID    string                 `json:"transportId"`
	DtlsParameters *domain.DtlsParameters `json:"dtlsParameters"`
}

type producePayload struct {
	TransportID   string           `json:"transportId"`
	Kind          domain.MediaKind `json:"kind"`
	RtpParameters json.RawMessage  `json:"rtpParameters"`
}

type consumePayload struct {
	TransportID     string                  `json:"transportId"`
	ProducerID      string                  `json:"producerId"`
	RtpCapabilities *domain.RtpCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerPayload struct {
	ConsumerID string `json:"consumerId"`
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID := utils.GenerateClientID()
	s.registry.Register(clientID, conn)
	s.logger.Infow("client connected", "client_id", clientID, "remote", r.RemoteAddr)

	// Cleanup must run exactly once whether the reader fails, a ping fails,
	// or a broadcast to this client fails first.
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			s.registry.Unregister(clientID)
			s.rooms.Disconnect(context.Background(), clientID)
			s.logger.Infow("client disconnected", "client_id", clientID)
		})
	}
	defer cleanup()

	if s.rateLimit.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.rateLimit.MaxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.rateLimit.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.rateLimit.MessagesPerSecond), s.rateLimit.Burst)
	}

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan inboundMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.logger.Warnw("rate limit exceeded", "client_id", clientID, "message_type", msg.Type)
				s.registry.Send(clientID, domain.MsgError, domain.ErrorData{Message: "Too many messages"})
				continue
			}
			s.dispatch(r.Context(), clientID, msg)

		case <-pingTicker.C:
			if err := s.registry.Ping(clientID); err != nil {
				s.logger.Infow("ping failed", "client_id", clientID, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read failed", "client_id", clientID, "error", err)
			}
			return
		}
	}
}

// dispatch decodes and runs one protocol operation. Operation errors become
// error envelopes on the same connection; the connection itself stays up.
func (s *WebSocketServer) dispatch(ctx context.Context, clientID string, msg inboundMessage) {
	ctx, span := tracing.TraceSignalMessage(ctx, msg.Type, clientID)
	defer span.End()

	reply, replyType, err := s.handleMessage(ctx, clientID, msg)
	if err != nil {
		tracing.RecordError(ctx, err)
		appErr := apperrors.GetAppError(err)
		if appErr == nil {
			appErr = apperrors.NewInternalError(err.Error())
		}
		s.logger.Warnw("message failed",
			"client_id", clientID,
			"message_type", msg.Type,
			"code", appErr.Code,
			"error", err)
		s.metrics.MessageFailed(msg.Type, string(appErr.Code))
		s.registry.Send(clientID, domain.MsgError, domain.ErrorData{Message: appErr.Message})
		return
	}
	if replyType != "" {
		s.registry.Send(clientID, replyType, reply)
		s.metrics.MessageHandled(msg.Type)
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, clientID string, msg inboundMessage) (any, string, error) {
	switch msg.Type {
	case domain.MsgJoinRoom:
		var payload joinRoomPayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			return nil, "", err
		}
		roomID := payload.roomID()
		if roomID == "" {
			return nil, "", apperrors.NewValidationError("Room ID is required")
		}
		tracing.SetRoomID(ctx, roomID)
		data, err := s.rooms.JoinRoom(ctx, clientID, roomID, payload.Username, payload.Role)
		if err != nil {
			return nil, "", err
		}
		return data, domain.MsgRoomJoined, nil

	case domain.MsgCreateTransport:
		var payload createTransportPayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			return nil, "", err
		}
		data, err := s.rooms.CreateTransport(ctx, clientID, payload.Sender)
		if err != nil {
			return nil, "", err
		}
		return data, domain.MsgTransportCreated, nil

	case domain.MsgConnectTransport:
		var payload connectTransportPayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			return nil, "", err
		}
		if payload.TransportID == "" || payload.DtlsParameters == nil {
			return nil, "", apperrors.NewValidationError("Missing required parameters")
		}
		data, err := s.rooms.ConnectTransport(ctx, clientID, payload.TransportID, *payload.DtlsParameters)
		if err != nil {
			return nil, "", err
		}
		return data, domain.MsgTransportConnected, nil

	case domain.MsgProduce:
		var payload producePayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			return nil, "", err
		}
		if payload.TransportID == "" || payload.Kind == "" || len(payload.RtpParameters) == 0 {
			return nil, "", apperrors.NewValidationError("Missing required parameters")
		}
		data, err := s.rooms.Produce(ctx, clientID, payload.TransportID, payload.Kind, payload.RtpParameters)
		if err != nil {
			return nil, "", err
		}
		return data, domain.MsgProducerCreated, nil

	case domain.MsgConsume:
		var payload consumePayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			return nil, "", err
		}
		if payload.TransportID == "" || payload.ProducerID == "" || payload.RtpCapabilities == nil {
			return nil, "", apperrors.NewValidationError("Missing required parameters")
		}
		data, err := s.rooms.Consume(ctx, clientID, payload.TransportID, payload.ProducerID, *payload.RtpCapabilities)
		if err != nil {
			return nil, "", err
		}
		return data, domain.MsgConsumerCreated, nil

	case domain.MsgResumeConsumer:
		var payload resumeConsumerPayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			return nil, "", err
		}
		if payload.ConsumerID == "" {
			return nil, "", apperrors.NewValidationError("Consumer ID is required")
		}
		data, err := s.rooms.ResumeConsumer(ctx, clientID, payload.ConsumerID)
		if err != nil {
			return nil, "", err
		}
		return data, domain.MsgConsumerResumed, nil

	default:
		// Unknown types are logged and ignored; the connection stays up.
		s.logger.Debugw("unknown message type", "client_id", clientID, "message_type", msg.Type)
		return nil, "", nil
	}
}

func unmarshalPayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperrors.NewValidationError("Missing required parameters")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewValidationError("Invalid message payload")
	}
	return nil
}
