package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics 中继业务指标
type RelayMetrics struct {
	QueuedTotal        *prometheus.CounterVec
	SubmissionsTotal   *prometheus.CounterVec
	RecoveredTotal     prometheus.Counter
	ConfirmedTotal     *prometheus.CounterVec
	CancelledTotal     prometheus.Counter
	SubmitDuration     *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	SessionConnected   prometheus.Gauge
	SessionEventsTotal *prometheus.CounterVec
}

// Global Metrics Instance
// 未调用 Init 时为 nil，下面的 helper 全部做了判空，测试中可直接调用
var Relay *RelayMetrics

// InitRelayMetrics 初始化业务指标
func InitRelayMetrics() {
	Relay = &RelayMetrics{
		QueuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_queued_total",
			Help: "The total number of eth_sendTransaction requests queued",
		}, []string{"network"}),
		SubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "L1 submission attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		RecoveredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_timeout_recovered_total",
			Help: "Submissions whose hash was recovered by block scan after a signature timeout",
		}),
		ConfirmedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_confirmed_total",
			Help: "Relays confirmed on L1 by receipt status",
		}, []string{"status"}),
		CancelledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_cancelled_total",
			Help: "Queued relays cancelled by the operator",
		}),
		SubmitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_submit_duration_seconds",
			Help:    "Duration from submit to broadcast (or failure)",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Number of queued relay requests",
		}),
		SessionConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_session_connected",
			Help: "1 when a dApp session is active",
		}),
		SessionEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_session_events_total",
			Help: "Session transport events by kind",
		}, []string{"kind"}),
	}
}

func ObserveQueued(network string, depth int) {
	if Relay == nil {
		return
	}
	Relay.QueuedTotal.WithLabelValues(network).Inc()
	Relay.QueueDepth.Set(float64(depth))
}

func ObserveQueueDepth(depth int) {
	if Relay == nil {
		return
	}
	Relay.QueueDepth.Set(float64(depth))
}

func ObserveSubmission(mode, outcome string, seconds float64) {
	if Relay == nil {
		return
	}
	Relay.SubmissionsTotal.WithLabelValues(mode, outcome).Inc()
	Relay.SubmitDuration.WithLabelValues(mode).Observe(seconds)
}

func ObserveRecovered() {
	if Relay == nil {
		return
	}
	Relay.RecoveredTotal.Inc()
}

func ObserveConfirmed(reverted bool) {
	if Relay == nil {
		return
	}
	status := "success"
	if reverted {
		status = "reverted"
	}
	Relay.ConfirmedTotal.WithLabelValues(status).Inc()
}

func ObserveCancelled() {
	if Relay == nil {
		return
	}
	Relay.CancelledTotal.Inc()
}

func ObserveSession(connected bool) {
	if Relay == nil {
		return
	}
	if connected {
		Relay.SessionConnected.Set(1)
	} else {
		Relay.SessionConnected.Set(0)
	}
}

func ObserveSessionEvent(kind string) {
	if Relay == nil {
		return
	}
	Relay.SessionEventsTotal.WithLabelValues(kind).Inc()
}
