package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"examcast/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

const keyframeInterval = 3 * time.Second

// transport wraps a single peer connection. The server side creates the
// offer so all ICE and DTLS parameters are known before the client answers.
type transport struct {
	id     string
	router *router
	pc     *webrtc.PeerConnection

	iceParameters  domain.IceParameters
	iceCandidates  []domain.IceCandidate
	dtlsParameters domain.DtlsParameters

	mu         sync.Mutex
	connected  bool
	remoteDtls domain.DtlsParameters
	producers  []*producer
	closed     bool
}

func newTransport(ctx context.Context, r *router) (*transport, error) {
	pc, err := r.engine.newPeerConnection()
	if err != nil {
		return nil, err
	}

	t := &transport{
		id:     uuid.New().String(),
		router: r,
		pc:     pc,
	}
	pc.OnTrack(t.handleRemoteTrack)

	// A data channel forces ICE gathering even before any media is added.
	if _, err := pc.CreateDataChannel("control", nil); err != nil {
		pc.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, err
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		pc.Close()
		return nil, errors.New("no local description after gathering")
	}

	params, err := parseTransportParameters(local.SDP)
	if err != nil {
		pc.Close()
		return nil, err
	}
	t.iceParameters = params.Ice
	t.iceCandidates = params.Candidates
	t.dtlsParameters = params.Dtls

	r.logger.Debugw("transport created",
		"transport_id", t.id,
		"router_id", r.id,
		"candidates", len(t.iceCandidates))
	return t, nil
}

func (t *transport) ID() string { return t.id }

func (t *transport) IceParameters() domain.IceParameters { return t.iceParameters }

func (t *transport) IceCandidates() []domain.IceCandidate { return t.iceCandidates }

func (t *transport) DtlsParameters() domain.DtlsParameters { return t.dtlsParameters }

// Connect records the remote DTLS parameters and marks the transport
// connected. The DTLS handshake itself completes on the media path once the
// client's answer arrives over the peer connection.
func (t *transport) Connect(_ context.Context, dtls domain.DtlsParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.remoteDtls = dtls
	t.connected = true
	return nil
}

func (t *transport) Produce(_ context.Context, kind domain.MediaKind, rtpParameters json.RawMessage) (domain.Producer, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}

	p := &producer{
		id:            uuid.New().String(),
		kind:          kind,
		transport:     t,
		rtpParameters: rtpParameters,
		subscribers:   make(map[string]*consumer),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	t.producers = append(t.producers, p)
	t.mu.Unlock()

	t.router.registerProducer(p)
	t.router.logger.Infow("producer created",
		"producer_id", p.id,
		"kind", kind,
		"transport_id", t.id)
	return p, nil
}

func (t *transport) Consume(_ context.Context, producerID string, _ domain.RtpCapabilities, paused bool) (domain.Consumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, domain.ErrProducerNotFound
	}

	codec := codecForKind(p.kind)
	track, err := webrtc.NewTrackLocalStaticRTP(codec, uuid.New().String(), "examcast")
	if err != nil {
		return nil, err
	}

	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}

	// Sender RTCP must be drained or the interceptors stall.
	go drainRTCP(sender)

	c := &consumer{
		id:        uuid.New().String(),
		producer:  p,
		transport: t,
		track:     track,
		sender:    sender,
	}
	c.paused.Store(paused)
	p.addSubscriber(c)

	t.router.logger.Infow("consumer created",
		"consumer_id", c.id,
		"producer_id", p.id,
		"kind", p.kind,
		"paused", paused)
	return c, nil
}

func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := t.producers
	t.producers = nil
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	t.pc.Close()
}

// handleRemoteTrack binds an incoming track to the pending producer of the
// same kind and forwards its packets to subscribers until the track ends.
func (t *transport) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := domain.MediaKindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.MediaKindVideo
	}

	p := t.claimProducer(kind)
	if p == nil {
		t.router.logger.Warnw("remote track without producer",
			"transport_id", t.id, "kind", kind)
		return
	}
	p.bindSource(uint32(track.SSRC()))

	if kind == domain.MediaKindVideo {
		go t.keyframeLoop(p)
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.router.logger.Debugw("track read ended",
					"producer_id", p.id, "error", err)
			}
			return
		}
		p.forward(pkt)
	}
}

// keyframeLoop periodically asks the sender for a keyframe so late joiners
// decode video without waiting for the next natural intra frame.
func (t *transport) keyframeLoop(p *producer) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for range ticker.C {
		if p.isClosed() {
			return
		}
		if err := t.requestKeyframe(p); err != nil {
			return
		}
	}
}

func (t *transport) requestKeyframe(p *producer) error {
	ssrc, ok := p.sourceSSRC()
	if !ok {
		return nil
	}
	return t.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: ssrc},
	})
}

func (t *transport) claimProducer(kind domain.MediaKind) *producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.producers {
		if p.kind == kind && p.claim() {
			return p
		}
	}
	return nil
}

func codecForKind(kind domain.MediaKind) webrtc.RTPCodecCapability {
	if kind == domain.MediaKindAudio {
		return webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}
	}
	return webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

var _ domain.Transport = (*transport)(nil)

type producer struct {
	id            string
	kind          domain.MediaKind
	transport     *transport
	rtpParameters json.RawMessage

	mu          sync.RWMutex
	subscribers map[string]*consumer
	bound       bool
	ssrc        uint32
	hasSSRC     bool
	closed      bool
}

func (p *producer) ID() string { return p.id }

func (p *producer) Kind() domain.MediaKind { return p.kind }

func (p *producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subscribers := make([]*consumer, 0, len(p.subscribers))
	for _, c := range p.subscribers {
		subscribers = append(subscribers, c)
	}
	p.subscribers = make(map[string]*consumer)
	p.mu.Unlock()

	p.transport.router.unregisterProducer(p.id)
	for _, c := range subscribers {
		c.Close()
	}
}

func (p *producer) forward(pkt *rtp.Packet) {
	p.mu.RLock()
	subscribers := make([]*consumer, 0, len(p.subscribers))
	for _, c := range p.subscribers {
		subscribers = append(subscribers, c)
	}
	p.mu.RUnlock()

	for _, c := range subscribers {
		if c.paused.Load() {
			continue
		}
		if err := c.track.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			p.transport.router.logger.Debugw("forward failed",
				"consumer_id", c.id, "error", err)
		}
	}
}

func (p *producer) addSubscriber(c *consumer) {
	p.mu.Lock()
	p.subscribers[c.id] = c
	p.mu.Unlock()
}

func (p *producer) removeSubscriber(id string) {
	p.mu.Lock()
	delete(p.subscribers, id)
	p.mu.Unlock()
}

func (p *producer) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bound || p.closed {
		return false
	}
	p.bound = true
	return true
}

func (p *producer) bindSource(ssrc uint32) {
	p.mu.Lock()
	p.ssrc = ssrc
	p.hasSSRC = true
	p.mu.Unlock()
}

func (p *producer) sourceSSRC() (uint32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ssrc, p.hasSSRC
}

func (p *producer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

var _ domain.Producer = (*producer)(nil)

type consumer struct {
	id        string
	producer  *producer
	transport *transport
	track     *webrtc.TrackLocalStaticRTP
	sender    *webrtc.RTPSender

	paused    atomic.Bool
	closeOnce sync.Once
}

func (c *consumer) ID() string { return c.id }

func (c *consumer) Kind() domain.MediaKind { return c.producer.kind }

// RtpParameters describes the single codec the consumer's track was created
// with, in the shape clients feed to their receive side.
func (c *consumer) RtpParameters() json.RawMessage {
	codec := codecForKind(c.producer.kind)
	params := map[string]any{
		"codecs": []map[string]any{
			{
				"mimeType":  codec.MimeType,
				"clockRate": codec.ClockRate,
				"channels":  codec.Channels,
			},
		},
	}
	raw, _ := json.Marshal(params)
	return raw
}

func (c *consumer) Paused() bool { return c.paused.Load() }

// Resume unpauses forwarding and requests a keyframe from the source so the
// subscriber can start decoding immediately.
func (c *consumer) Resume(_ context.Context) error {
	c.paused.Store(false)
	if c.producer.kind == domain.MediaKindVideo {
		if err := c.producer.transport.requestKeyframe(c.producer); err != nil {
			return err
		}
	}
	return nil
}

func (c *consumer) Close() {
	c.closeOnce.Do(func() {
		c.producer.removeSubscriber(c.id)
		if err := c.transport.pc.RemoveTrack(c.sender); err != nil {
			c.transport.router.logger.Debugw("remove track failed",
				"consumer_id", c.id, "error", err)
		}
	})
}

var _ domain.Consumer = (*consumer)(nil)
