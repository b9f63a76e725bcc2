package dbmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionStatus tracks connection health status (1=healthy, 0=unhealthy)
	connectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelspec_db_connection_status",
			Help: "Connection status (1=healthy, 0=unhealthy)",
		},
		[]string{"type"},
	)

	connectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelspec_db_connection_pool_size",
			Help: "Current connection pool size",
		},
		[]string{"type", "state"}, // state: open, idle, in_use
	)

	connectionWaitCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelspec_db_connection_wait_count",
			Help: "Number of times connections had to wait for availability",
		},
		[]string{"type"},
	)

	connectionWaitDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelspec_db_connection_wait_duration_seconds",
			Help: "Total time connections spent waiting for availability",
		},
		[]string{"type"},
	)

	reconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelspec_db_reconnect_attempts_total",
			Help: "Total number of retried connection attempts",
		},
		[]string{"type", "result"}, // result: success, failure
	)
)

// PublishMetrics publishes the pool statistics of c.
func (c *Connection) PublishMetrics() {
	stats := c.Stats()
	dbType := string(stats.Type)

	status := float64(0)
	if stats.Healthy {
		status = 1
	}
	connectionStatus.WithLabelValues(dbType).Set(status)

	connectionPoolSize.WithLabelValues(dbType, "open").Set(float64(stats.OpenConnections))
	connectionPoolSize.WithLabelValues(dbType, "idle").Set(float64(stats.Idle))
	connectionPoolSize.WithLabelValues(dbType, "in_use").Set(float64(stats.InUse))
	connectionWaitCount.WithLabelValues(dbType).Set(float64(stats.WaitCount))
	connectionWaitDuration.WithLabelValues(dbType).Set(stats.WaitDuration.Seconds())
}

func recordReconnectAttempt(dbType DatabaseType, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	reconnectAttempts.WithLabelValues(string(dbType), result).Inc()
}
