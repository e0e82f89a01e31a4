package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/toolbridge/toolbridge/internal/port/inbound"
)

// Metrics holds the relay's Prometheus metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	MessagesIngested   prometheus.Counter
	FramesPushed       prometheus.Counter
	PushChannelsOpened prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
// Session and peer gauges read live counts from the relay on scrape.
func NewMetrics(reg prometheus.Registerer, relay inbound.Relay) *Metrics {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "toolbridge",
			Name:      "active_sessions",
			Help:      "Number of live sessions",
		},
		func() float64 {
			sessions, _ := relay.Counts()
			return float64(sessions)
		},
	)
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "toolbridge",
			Name:      "active_peers",
			Help:      "Number of attached peers",
		},
		func() float64 {
			_, peers := relay.Counts()
			return float64(peers)
		},
	)

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolbridge",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolbridge",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		MessagesIngested: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "toolbridge",
				Name:      "messages_ingested_total",
				Help:      "Total messages accepted by the ingest endpoint",
			},
		),
		FramesPushed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "toolbridge",
				Name:      "frames_pushed_total",
				Help:      "Total frames written to push channels",
			},
		),
		PushChannelsOpened: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "toolbridge",
				Name:      "push_channels_opened_total",
				Help:      "Total push channels opened",
			},
		),
	}
}
