package domain

import "encoding/json"

// Signaling message types exchanged over the per-client channel. Inbound and
// outbound messages share the envelope shape {"type": ..., "data": {...}}.
const (
	MsgJoinRoom         = "joinRoom"
	MsgCreateTransport  = "createWebRtcTransport"
	MsgConnectTransport = "connectTransport"
	MsgProduce          = "produce"
	MsgConsume          = "consume"
	MsgResumeConsumer   = "resumeConsumer"

	MsgRoomJoined         = "roomJoined"
	MsgUserJoined         = "userJoined"
	MsgUserLeft           = "userLeft"
	MsgTransportCreated   = "transportCreated"
	MsgTransportConnected = "transportConnected"
	MsgProducerCreated    = "producerCreated"
	MsgNewProducer        = "newProducer"
	MsgConsumerCreated    = "consumerCreated"
	MsgConsumerResumed    = "consumerResumed"
	MsgError              = "error"
)

type RoomJoinedData struct {
	RoomID          string            `json:"roomId"`
	Participants    []ParticipantInfo `json:"participants"`
	RtpCapabilities RtpCapabilities   `json:"rtpCapabilities"`
}

type UserLeftData struct {
	UserID string `json:"userId"`
}

type TransportCreatedData struct {
	ID             string         `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type TransportConnectedData struct {
	TransportID string `json:"transportId"`
	Connected   bool   `json:"connected"`
}

type ProducerCreatedData struct {
	ID string `json:"id"`
}

type NewProducerData struct {
	ProducerID     string    `json:"producerId"`
	ProducerUserID string    `json:"producerUserId"`
	Kind           MediaKind `json:"kind"`
}

type ConsumerCreatedData struct {
	ID             string          `json:"id"`
	ProducerID     string          `json:"producerId"`
	Kind           MediaKind       `json:"kind"`
	RtpParameters  json.RawMessage `json:"rtpParameters"`
	ProducerUserID string          `json:"producerUserId"`
}

type ConsumerResumedData struct {
	ConsumerID string `json:"consumerId"`
	Resumed    bool   `json:"resumed"`
}

type ErrorData struct {
	Message string `json:"message"`
}
