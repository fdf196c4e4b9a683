package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes streaming metrics. A nil collector is valid
// and records nothing, so tests can pass nil instead of registering
// duplicate metrics.
type PrometheusCollector struct {
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	chunksSentTotal prometheus.Counter
	bytesSentTotal  prometheus.Counter
	sendDeferrals   prometheus.Counter
	sessionDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audiocast_sessions_active",
			Help: "Number of currently active streaming sessions",
		}),

		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audiocast_sessions_total",
			Help: "Total number of streaming sessions created",
		}),

		chunksSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audiocast_chunks_sent_total",
			Help: "Total number of audio chunks sent over data channels",
		}),

		bytesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audiocast_bytes_sent_total",
			Help: "Total amount of audio data sent in bytes",
		}),

		sendDeferrals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audiocast_send_deferrals_total",
			Help: "Number of chunk sends deferred by the backpressure gauge",
		}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiocast_session_duration_seconds",
			Help:    "Lifetime of streaming sessions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (p *PrometheusCollector) RecordSessionOpened() {
	if p == nil {
		return
	}
	p.sessionsActive.Inc()
	p.sessionsTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionClosed(createdAt time.Time) {
	if p == nil {
		return
	}
	p.sessionsActive.Dec()
	p.sessionDuration.Observe(time.Since(createdAt).Seconds())
}

func (p *PrometheusCollector) RecordChunkSent(size int) {
	if p == nil {
		return
	}
	p.chunksSentTotal.Inc()
	p.bytesSentTotal.Add(float64(size))
}

func (p *PrometheusCollector) RecordSendDeferred() {
	if p == nil {
		return
	}
	p.sendDeferrals.Inc()
}
