package monitoring

import (
	"examcast/internal/core/domain"
	"examcast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder on top of promauto
// metrics. All vectors are pre-registered on the default registry.
type PrometheusCollector struct {
	roomsActive           prometheus.Gauge
	participantsConnected prometheus.Gauge

	producersActive *prometheus.GaugeVec
	consumersActive *prometheus.GaugeVec

	transportsCreatedTotal prometheus.Counter
	messagesHandledTotal   *prometheus.CounterVec
	messagesFailedTotal    *prometheus.CounterVec
	broadcastsSentTotal    *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "examcast_rooms_active",
			Help: "Number of rooms with at least one participant",
		}),

		participantsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "examcast_participants_connected",
			Help: "Number of participants currently joined to a room",
		}),

		producersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "examcast_producers_active",
			Help: "Number of live producers by media kind",
		}, []string{"kind"}),

		consumersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "examcast_consumers_active",
			Help: "Number of live consumers by media kind",
		}, []string{"kind"}),

		transportsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examcast_transports_created_total",
			Help: "Total number of WebRTC transports created",
		}),

		messagesHandledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examcast_signal_messages_total",
			Help: "Total signaling messages handled successfully by type",
		}, []string{"type"}),

		messagesFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examcast_signal_errors_total",
			Help: "Total signaling messages that failed by type and error code",
		}, []string{"type", "code"}),

		broadcastsSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examcast_broadcasts_sent_total",
			Help: "Total broadcast envelopes sent by message type",
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) RoomOpened() { p.roomsActive.Inc() }

func (p *PrometheusCollector) RoomClosed() { p.roomsActive.Dec() }

func (p *PrometheusCollector) ParticipantJoined() { p.participantsConnected.Inc() }

func (p *PrometheusCollector) ParticipantLeft() { p.participantsConnected.Dec() }

func (p *PrometheusCollector) TransportCreated() { p.transportsCreatedTotal.Inc() }

func (p *PrometheusCollector) ProducerCreated(kind domain.MediaKind) {
	p.producersActive.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) ProducerClosed(kind domain.MediaKind) {
	p.producersActive.WithLabelValues(string(kind)).Dec()
}

func (p *PrometheusCollector) ConsumerCreated(kind domain.MediaKind) {
	p.consumersActive.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) ConsumerClosed(kind domain.MediaKind) {
	p.consumersActive.WithLabelValues(string(kind)).Dec()
}

func (p *PrometheusCollector) MessageHandled(messageType string) {
	p.messagesHandledTotal.WithLabelValues(messageType).Inc()
}

func (p *PrometheusCollector) MessageFailed(messageType, code string) {
	p.messagesFailedTotal.WithLabelValues(messageType, code).Inc()
}

func (p *PrometheusCollector) BroadcastSent(messageType string) {
	p.broadcastsSentTotal.WithLabelValues(messageType).Inc()
}

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)
