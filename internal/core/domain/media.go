package domain

import (
	"context"
	"encoding/json"
)

// MediaKind is the media type of a producer or consumer.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// RtpCapabilities lists the codecs an endpoint (router or client) can handle.
type RtpCapabilities struct {
	Codecs []RtpCodecCapability `json:"codecs"`
}

type RtpCodecCapability struct {
	Kind       MediaKind      `json:"kind"`
	MimeType   string         `json:"mimeType"`
	ClockRate  int            `json:"clockRate"`
	Channels   int            `json:"channels,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Component  int    `json:"component"`
	Protocol   string `json:"protocol"`
	Priority   int    `json:"priority"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	Type       string `json:"type"`
}

type DtlsParameters struct {
	Role         string            `json:"role"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// Router is the per-room entity of the media engine. It tracks producers and
// decides capability compatibility for consume requests.
type Router interface {
	ID() string
	RtpCapabilities() RtpCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	CanConsume(producerID string, caps RtpCapabilities) bool
	Close()
}

// Transport is one negotiated network path belonging to one participant.
type Transport interface {
	ID() string
	IceParameters() IceParameters
	IceCandidates() []IceCandidate
	DtlsParameters() DtlsParameters
	Connect(ctx context.Context, dtls DtlsParameters) error
	Produce(ctx context.Context, kind MediaKind, rtpParameters json.RawMessage) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RtpCapabilities, paused bool) (Consumer, error)
	Close()
}

// Producer identifies one published media flow.
type Producer interface {
	ID() string
	Kind() MediaKind
	Close()
}

// Consumer identifies one subscribed media flow forwarding a producer. It is
// created paused and transitions to resumed only via Resume.
type Consumer interface {
	ID() string
	Kind() MediaKind
	RtpParameters() json.RawMessage
	Paused() bool
	Resume(ctx context.Context) error
	Close()
}
