package signal

import (
	"sync"
	"time"

	"examcast/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var _ ports.Notifier = (*Registry)(nil)

// Envelope is the wire shape of every signaling message, both directions.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// connection pairs a websocket with the write lock serializing everything
// sent on it: replies, broadcasts and pings come from different goroutines.
type connection struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *connection) writeJSON(v any, deadline time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(deadline))
	return c.ws.WriteJSON(v)
}

// Registry tracks live client connections and delivers envelopes to them.
// A send to an unknown client is dropped silently; a failed write reports
// the client through onSendFailure so the owner can run disconnect cleanup.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection

	writeTimeout  time.Duration
	onSendFailure func(clientID string)

	logger *zap.SugaredLogger
}

func NewRegistry(writeTimeout time.Duration, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		conns:        make(map[string]*connection),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// OnSendFailure installs the callback invoked, in its own goroutine, when a
// write to a client fails. Must be set before the first connection arrives.
func (r *Registry) OnSendFailure(fn func(clientID string)) {
	r.onSendFailure = fn
}

func (r *Registry) Register(clientID string, ws *websocket.Conn) {
	r.mu.Lock()
	r.conns[clientID] = &connection{ws: ws}
	r.mu.Unlock()
}

func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	delete(r.conns, clientID)
	r.mu.Unlock()
}

// Count reports the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers one envelope to one client. Best-effort: errors never
// propagate to the operation that triggered the send.
func (r *Registry) Send(clientID, messageType string, data any) {
	r.mu.RLock()
	conn, ok := r.conns[clientID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if data == nil {
		data = struct{}{}
	}
	if err := conn.writeJSON(Envelope{Type: messageType, Data: data}, r.writeTimeout); err != nil {
		r.logger.Warnw("send failed",
			"client_id", clientID,
			"message_type", messageType,
			"error", err)
		if r.onSendFailure != nil {
			go r.onSendFailure(clientID)
		}
	}
}

// Ping writes a control ping on the client's connection.
func (r *Registry) Ping(clientID string) error {
	r.mu.RLock()
	conn, ok := r.conns[clientID]
	r.mu.RUnlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.ws.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	return conn.ws.WriteMessage(websocket.PingMessage, nil)
}
