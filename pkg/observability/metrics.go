package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal    *prometheus.CounterVec
	RoleCacheRequestsTotal *prometheus.CounterVec

	// Workflow metrics
	TransitionsTotal *prometheus.CounterVec
	OverdueRecords   *prometheus.GaugeVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "club_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "club_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "club_authz_decisions_total",
				Help: "Scope guard decisions by action, resource kind and result",
			},
			[]string{"action", "resource", "result"},
		),
		RoleCacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "club_role_cache_requests_total",
				Help: "Role set cache lookups by result",
			},
			[]string{"result"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "club_approval_transitions_total",
				Help: "Approval state machine transitions by kind, transition and result",
			},
			[]string{"kind", "transition", "result"},
		),
		OverdueRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "club_overdue_records",
				Help: "Records currently past their due date, by kind",
			},
			[]string{"kind"},
		),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "club_db_connections_active",
			Help: "Number of in-use database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "club_db_connections_idle",
			Help: "Number of idle database connections",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.RoleCacheRequestsTotal,
		m.TransitionsTotal,
		m.OverdueRecords,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordAuthzDecision counts a guard decision
func (m *Metrics) RecordAuthzDecision(action, resource string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(action, resource, result).Inc()
}

// RecordRoleCache counts a role cache hit or miss
func (m *Metrics) RecordRoleCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RoleCacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordTransition counts a state machine transition attempt. result is "ok" or an error kind.
func (m *Metrics) RecordTransition(kind, transition, result string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind, transition, result).Inc()
}

// SetOverdue sets the overdue gauge for a kind
func (m *Metrics) SetOverdue(kind string, count int) {
	if m == nil {
		return
	}
	m.OverdueRecords.WithLabelValues(kind).Set(float64(count))
}

// UpdateDBStats copies connection pool stats into gauges
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests, labelling by mux route template to bound cardinality
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
