// Package metrics provides Prometheus instrumentation for the Riftpay platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riftpay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransitionsTotal counts rift state transitions by target status.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "transitions_total",
			Help:      "Total rift state transitions by target status.",
		},
		[]string{"to"},
	)

	// TransitionsRejectedTotal counts transition requests rejected by the table.
	TransitionsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riftpay",
		Name:      "transitions_rejected_total",
		Help:      "Total transition requests rejected as forbidden.",
	})

	// ReleasesTotal counts release operations by unit and outcome.
	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "releases_total",
			Help:      "Total release operations by unit (rift/milestone) and outcome.",
		},
		[]string{"unit", "outcome"},
	)

	// DisputesTotal counts dispute lifecycle events by action.
	DisputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "disputes_total",
			Help:      "Total dispute events by action (opened/reviewed/resolved).",
		},
		[]string{"action"},
	)

	// SweepRunsTotal counts auto-release sweep invocations.
	SweepRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riftpay",
		Name:      "sweep_runs_total",
		Help:      "Total auto-release sweep invocations.",
	})

	// SweepReleasedTotal counts rifts and milestones released by the sweep.
	SweepReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "sweep_released_total",
			Help:      "Total units released by the auto-release sweep.",
		},
		[]string{"unit"},
	)

	// PayoutsTotal counts external payout attempts by result.
	PayoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "payouts_total",
			Help:      "Total external payout attempts by result.",
		},
		[]string{"result"},
	)

	// PayoutDuration observes external payout call latency.
	PayoutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riftpay",
		Name:      "payout_duration_seconds",
		Help:      "External payout call duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// WebhookDeliveriesTotal counts webhook delivery attempts by result.
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "webhook_deliveries_total",
			Help:      "Total webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riftpay",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// RiftDuration observes time from funding to terminal settlement.
	RiftDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riftpay",
		Name:      "rift_duration_seconds",
		Help:      "Time from rift funding to terminal settlement in seconds.",
		Buckets:   []float64{60, 600, 3600, 14400, 86400, 172800, 604800},
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransitionsTotal,
		TransitionsRejectedTotal,
		ReleasesTotal,
		DisputesTotal,
		SweepRunsTotal,
		SweepReleasedTotal,
		PayoutsTotal,
		PayoutDuration,
		WebhookDeliveriesTotal,
		ActiveWebSocketClients,
		RiftDuration,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
