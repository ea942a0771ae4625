package webrtc

import (
	"context"
	"sync"

	"examcast/internal/core/domain"

	"go.uber.org/zap"
)

// CanConsumePredicate decides whether a producer can be consumed with the
// requester's declared capabilities. Kept pluggable so full codec matching
// can replace kind-level matching without touching the dispatcher.
type CanConsumePredicate func(p *producer, caps domain.RtpCapabilities) bool

// kindMatch approves a consume request when at least one declared codec has
// the producer's media kind.
func kindMatch(p *producer, caps domain.RtpCapabilities) bool {
	for _, codec := range caps.Codecs {
		if codec.Kind == p.kind {
			return true
		}
	}
	return false
}

type router struct {
	id           string
	engine       *Engine
	capabilities domain.RtpCapabilities
	canConsume   CanConsumePredicate

	mu         sync.RWMutex
	producers  map[string]*producer
	transports []*transport
	closed     bool

	logger *zap.SugaredLogger
}

func (r *router) ID() string { return r.id }

func (r *router) RtpCapabilities() domain.RtpCapabilities { return r.capabilities }

func (r *router) CreateTransport(ctx context.Context) (domain.Transport, error) {
	t, err := newTransport(ctx, r)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	return t, nil
}

func (r *router) CanConsume(producerID string, caps domain.RtpCapabilities) bool {
	r.mu.RLock()
	p, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.canConsume(p, caps)
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := r.transports
	r.transports = nil
	r.producers = make(map[string]*producer)
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.logger.Infow("router closed", "router_id", r.id)
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) unregisterProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *router) producer(id string) (*producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

// routerRtpCapabilities is the static capability set advertised to joiners.
func routerRtpCapabilities() domain.RtpCapabilities {
	return domain.RtpCapabilities{
		Codecs: []domain.RtpCodecCapability{
			{
				Kind:      domain.MediaKindAudio,
				MimeType:  "audio/opus",
				ClockRate: 48000,
				Channels:  2,
			},
			{
				Kind:      domain.MediaKindVideo,
				MimeType:  "video/VP8",
				ClockRate: 90000,
			},
			{
				Kind:      domain.MediaKindVideo,
				MimeType:  "video/H264",
				ClockRate: 90000,
				Parameters: map[string]any{
					"packetizationMode":     1,
					"profileLevelId":        "42e01f",
					"levelAsymmetryAllowed": 1,
				},
			},
		},
	}
}
