// Package telemetry provides application-level observability for the Agendly
// backend core.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP listener started by main.go (default port
// 9090, path GET /metrics). The metrics port is deliberately separate from the
// Gin API listener so the scrape path sits behind no rate limiting and no
// tenant resolution.
//
// HTTP metrics use c.FullPath() (route template such as /v1/public/availability)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Isolation-core metrics.
//
// RateLimitRejectionsTotal counts 429 responses produced by the rate limiter,
// labelled by limiter name (general_ip, per_user, per_org, auth_ip,
// public_api_key, heavy_per_user, plan).
//
// EnumerationGuardRejectionsTotal counts public tenant-resolution probes
// rejected by the per-organization enumeration guard. A sustained non-zero
// rate for a single organization id is a strong enumeration-attack signal.
//
// CrossTenantRejectionsTotal counts requests rejected because a path or body
// organization id did not match the resolved tenant. Any non-zero rate is
// worth an alert: legitimate clients never send another tenant's id.
//
// CounterStoreFallbacksTotal counts operations served by the in-process
// fallback counter store because Redis was unreachable. In multi-instance
// deployments a non-zero rate means rate limits are per-instance only.
var (
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected with 429, by limiter name.",
		},
		[]string{"limiter"},
	)

	EnumerationGuardRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enumeration_guard_rejections_total",
			Help: "Total number of public tenant-resolution probes rejected by the enumeration guard.",
		},
	)

	CrossTenantRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cross_tenant_rejections_total",
			Help: "Total number of requests rejected for supplying a foreign organization id.",
		},
	)

	CounterStoreFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counter_store_fallbacks_total",
			Help: "Total number of counter operations served by the in-process fallback store.",
		},
	)
)

// Lease metrics.
//
// LeaseAcquireFailuresTotal counts failed connection-lease acquisitions
// (pool exhaustion or acquisition timeout), labelled by mode
// (tenant, tenant_tx, bypass). These surface to clients as 503s.
var LeaseAcquireFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lease_acquire_failures_total",
		Help: "Total number of failed database connection lease acquisitions, by lease mode.",
	},
	[]string{"mode"},
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool, sampled every 30 seconds by StartDBStatsCollector rather
// than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples the
// connection pool every 30 seconds and publishes DBOpenConnections. The
// goroutine exits when stop is closed.
func StartDBStatsCollector(db *sql.DB, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			case <-stop:
				slog.Debug("db stats collector stopped")
				return
			}
		}
	}()
}
