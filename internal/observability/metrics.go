package observability

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exposed by a sender or receiver
// session over an optional loopback HTTP endpoint.
type Metrics struct {
	TransfersTotal        *prometheus.CounterVec
	TransfersActive       prometheus.Gauge
	TransferDuration      prometheus.Histogram
	BytesTransferredTotal *prometheus.CounterVec
	ChunksSentTotal       prometheus.Counter
	ChunksReceivedTotal   prometheus.Counter

	CryptoOperationsTotal   *prometheus.CounterVec
	CryptoOperationDuration prometheus.Histogram

	HandshakeFailuresTotal prometheus.Counter

	activeTransfers int64
}

// NewMetrics creates and registers the metrics a transfer session updates.
func NewMetrics() *Metrics {
	return &Metrics{
		TransfersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beam_transfers_total",
				Help: "Total transfer sessions initiated",
			},
			[]string{"status"},
		),
		TransfersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "beam_transfers_active",
				Help: "Currently active transfer sessions",
			},
		),
		TransferDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beam_transfer_duration_seconds",
				Help:    "Transfer completion time distribution",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
			},
		),
		BytesTransferredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beam_bytes_transferred_total",
				Help: "Total bytes transferred",
			},
			[]string{"direction"},
		),
		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "beam_chunks_sent_total",
				Help: "Total chunks sent",
			},
		),
		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "beam_chunks_received_total",
				Help: "Total chunks received",
			},
		),
		CryptoOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beam_crypto_operations_total",
				Help: "Cryptographic operations performed",
			},
			[]string{"operation"},
		),
		CryptoOperationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beam_crypto_operation_duration_seconds",
				Help:    "Crypto operation latency",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0},
			},
		),
		HandshakeFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "beam_handshake_failures_total",
				Help: "Failed password handshakes",
			},
		),
	}
}

// RecordTransferStart increments active transfer counters.
func (m *Metrics) RecordTransferStart() {
	atomic.AddInt64(&m.activeTransfers, 1)
	m.TransfersActive.Set(float64(atomic.LoadInt64(&m.activeTransfers)))
}

// RecordTransferComplete records transfer completion metrics.
func (m *Metrics) RecordTransferComplete(success bool, durationSeconds float64) {
	atomic.AddInt64(&m.activeTransfers, -1)
	m.TransfersActive.Set(float64(atomic.LoadInt64(&m.activeTransfers)))

	status := "success"
	if !success {
		status = "failure"
	}
	m.TransfersTotal.WithLabelValues(status).Inc()
	m.TransferDuration.Observe(durationSeconds)
}

// RecordChunkSent updates metrics for a sent chunk.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkReceived updates metrics for a received chunk.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordCryptoOperation records cryptographic operation duration.
func (m *Metrics) RecordCryptoOperation(operation string, durationSeconds float64) {
	m.CryptoOperationsTotal.WithLabelValues(operation).Inc()
	m.CryptoOperationDuration.Observe(durationSeconds)
}

// RecordHandshakeFailure increments the handshake failure counter.
func (m *Metrics) RecordHandshakeFailure() {
	m.HandshakeFailuresTotal.Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics instance, creating and
// registering it on first use. A sender and a receiver in the same process
// share one registration, since promauto panics on duplicate metric names.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}
