// Package metrics provides Prometheus metrics for the FTP operation queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ftpmanager_queue_depth",
			Help: "Number of operations waiting in the queue",
		},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpmanager_operations_total",
			Help: "Total number of executed operations",
		},
		[]string{"op", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ftpmanager_operation_duration_seconds",
			Help:    "Operation execution time in seconds, excluding queue wait",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 600},
		},
		[]string{"op"},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpmanager_reconnects_total",
			Help: "Reconnect-and-retry cycles triggered by a lost session",
		},
		[]string{"result"},
	)

	connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ftpmanager_connected",
			Help: "1 while a session is active",
		},
	)
)

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func RecordOperation(op, status string, d time.Duration) {
	operationsTotal.WithLabelValues(op, status).Inc()
	operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordReconnect(result string) {
	reconnectsTotal.WithLabelValues(result).Inc()
}

func SetConnected(on bool) {
	if on {
		connected.Set(1)
		return
	}
	connected.Set(0)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
