package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics chat client prometheus collectors
type Metrics struct {
	ConnState         *prometheus.GaugeVec
	ReconnectsTotal   prometheus.Counter
	BackoffSeconds    prometheus.Histogram
	JoinsTotal        *prometheus.CounterVec
	DroppedPayloads   *prometheus.CounterVec
	BackfillFetches   *prometheus.CounterVec
	DuplicateMessages prometheus.Counter
	PresenceFlushes   prometheus.Counter
	PresenceOnline    prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Get process wide metrics, registered once
func Get() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			ConnState: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "chat_client_connection_state",
				Help: "1 for the current socket state, 0 otherwise",
			}, []string{"state"}),
			ReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "chat_client_reconnect_attempts_total",
				Help: "Total number of scheduled reconnect attempts",
			}),
			BackoffSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "chat_client_reconnect_backoff_seconds",
				Help:    "Scheduled reconnect delays",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
			}),
			JoinsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "chat_client_channel_joins_total",
				Help: "phx_join results by outcome",
			}, []string{"result"}),
			DroppedPayloads: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "chat_client_dropped_payloads_total",
				Help: "Malformed inbound payloads dropped",
			}, []string{"event"}),
			BackfillFetches: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "chat_client_history_fetches_total",
				Help: "History page fetches by op and result",
			}, []string{"op", "result"}),
			DuplicateMessages: promauto.NewCounter(prometheus.CounterOpts{
				Name: "chat_client_duplicate_messages_total",
				Help: "Messages ignored because their id was already in the window",
			}),
			PresenceFlushes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "chat_client_presence_flushes_total",
				Help: "Debounced presence flushes applied",
			}),
			PresenceOnline: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "chat_client_presence_online_users",
				Help: "Users currently reported online",
			}),
		}
	})
	return metricsInstance
}

var connStates = []string{"connecting", "open", "closed", "reconnecting", "disconnected"}

// SetConnState mark state as the only active one
func (m *Metrics) SetConnState(state string) {
	if m == nil || m.ConnState == nil {
		return
	}
	for _, s := range connStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnState.WithLabelValues(s).Set(v)
	}
}

// RecordReconnect one scheduled retry
func (m *Metrics) RecordReconnect(delaySeconds float64) {
	if m == nil || m.ReconnectsTotal == nil {
		return
	}
	m.ReconnectsTotal.Inc()
	m.BackoffSeconds.Observe(delaySeconds)
}

// RecordJoin result ok / error / timeout / not_connected
func (m *Metrics) RecordJoin(result string) {
	if m == nil || m.JoinsTotal == nil {
		return
	}
	m.JoinsTotal.WithLabelValues(result).Inc()
}

// RecordDropped malformed payload
func (m *Metrics) RecordDropped(event string) {
	if m == nil || m.DroppedPayloads == nil {
		return
	}
	m.DroppedPayloads.WithLabelValues(event).Inc()
}

// RecordFetch history page fetch
func (m *Metrics) RecordFetch(op string, ok bool) {
	if m == nil || m.BackfillFetches == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.BackfillFetches.WithLabelValues(op, result).Inc()
}

// RecordDuplicate dedup hit
func (m *Metrics) RecordDuplicate() {
	if m == nil || m.DuplicateMessages == nil {
		return
	}
	m.DuplicateMessages.Inc()
}

// RecordPresenceFlush flush + online count
func (m *Metrics) RecordPresenceFlush(online int) {
	if m == nil || m.PresenceFlushes == nil {
		return
	}
	m.PresenceFlushes.Inc()
	m.PresenceOnline.Set(float64(online))
}
