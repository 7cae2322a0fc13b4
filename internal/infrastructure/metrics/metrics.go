// Package metrics holds the Prometheus collectors of the agent. Collectors are
// registered on the default registry and served by the monitoring server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

const namespace = "greenhouse"

// Pipeline stages used as the "stage" label of MessagesFailed.
const (
	StageParse    = "parse"
	StageSensor   = "sensor"
	StageAlert    = "alert"
	StageFileLog  = "filelog"
	StageTimeout  = "timeout"
	StagePanic    = "panic"
	StageOverflow = "overflow"
)

var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Messages delivered by the broker",
	})

	MessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_failed_total",
		Help:      "Messages whose processing failed, by pipeline stage",
	}, []string{"stage"})

	MessageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "message_duration_seconds",
		Help:      "Time spent processing one message",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications written to the store, by action",
	}, []string{"action"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_reconnects_total",
		Help:      "Reconnections after a lost broker connection",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Topics currently receiving messages",
	})

	CalibratedSensors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calibration_states",
		Help:      "Sensors with in-memory calibration state",
	})

	CachedAlertConfigs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "alert_configs_cached",
		Help:      "Alert configurations held in the cache",
	})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_refresh_runs_total",
		Help:      "Alert cache refresh runs, by result",
	}, []string{"result"})

	ArchivedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archived_files_total",
		Help:      "Log files uploaded to object storage, by result",
	}, []string{"result"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"name"})

	BreakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_requests_total",
		Help:      "Requests through a circuit breaker, by result",
	}, []string{"name", "result"})
)

// BreakerStateValue converts a gobreaker state to the gauge encoding.
func BreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
