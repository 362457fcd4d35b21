// Package metrics provides Prometheus collectors for watch party rooms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricEvents         = "watchparty_events_total"
	MetricRejections     = "watchparty_rejections_total"
	MetricHostPromotions = "watchparty_host_promotions_total"
	MetricRooms          = "watchparty_rooms"
	MetricParticipants   = "watchparty_participants"
)

// Promotion reasons.
const (
	PromotionExplicit = "explicit"
	PromotionHandover = "handover"
)

// Metrics holds service collectors. All operations are thread-safe.
type Metrics struct {
	events         *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	hostPromotions *prometheus.CounterVec
	rooms          prometheus.Gauge
	participants   prometheus.Gauge
}

// New creates collectors without registering them.
func New() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEvents,
			Help: "Total number of inbound events by type",
		}, []string{"event"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRejections,
			Help: "Total number of rejected inbound events by error code",
		}, []string{"code"}),
		hostPromotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHostPromotions,
			Help: "Total number of host promotions by reason",
		}, []string{"reason"}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRooms,
			Help: "Number of active rooms",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricParticipants,
			Help: "Number of participants across all rooms",
		}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.events,
		m.rejections,
		m.hostPromotions,
		m.rooms,
		m.participants,
	}
}

func (m *Metrics) IncEvent(event string) {
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) IncRejection(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) IncHostPromotion(reason string) {
	m.hostPromotions.WithLabelValues(reason).Inc()
}

// SetOccupancy updates room and participant gauges.
func (m *Metrics) SetOccupancy(rooms, participants int) {
	m.rooms.Set(float64(rooms))
	m.participants.Set(float64(participants))
}
