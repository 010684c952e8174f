// Package metrics exposes Puck Central's Prometheus metrics.
//
// Collectors live on a private registry rather than the global default so
// that tests (and multiple instances in one process) never collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "puckcentral"

// Metrics holds every collector Puck Central reports.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	activeSessions  prometheus.Gauge
	dispatches      *prometheus.CounterVec
	actions         *prometheus.CounterVec
	beacons         *prometheus.CounterVec
	bridgeRestarts  prometheus.Counter
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gatt_sessions_total",
			Help:      "Finished GATT discovery sessions by outcome.",
		}, []string{"outcome"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gatt_session_duration_seconds",
			Help:      "Time from connect request to session end.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gatt_sessions_active",
			Help:      "Discovery sessions currently in flight.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_dispatches_total",
			Help:      "Fired triggers by trigger name and whether any rule matched.",
		}, []string{"trigger", "resolved"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_executed_total",
			Help:      "Executed rule actions by actuator and result.",
		}, []string{"actuator", "result"}),
		beacons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacon_transitions_total",
			Help:      "Beacon range transitions by direction and whether the beacon is paired.",
		}, []string{"transition", "known"}),
		bridgeRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ble_bridge_restarts_total",
			Help:      "Restarts of the managed BLE bridge process.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.sessions,
		m.sessionDuration,
		m.activeSessions,
		m.dispatches,
		m.actions,
		m.beacons,
		m.bridgeRestarts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSession records a finished discovery session.
func (m *Metrics) ObserveSession(outcome string, d time.Duration) {
	m.sessions.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(d.Seconds())
}

// SetActiveSessions reports the number of in-flight sessions.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// ObserveDispatch records one fired trigger.
func (m *Metrics) ObserveDispatch(trigger string, resolved bool) {
	m.dispatches.WithLabelValues(trigger, strconv.FormatBool(resolved)).Inc()
}

// ObserveAction records one executed action.
func (m *Metrics) ObserveAction(actuator string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.actions.WithLabelValues(actuator, result).Inc()
}

// ObserveBeacon records a beacon entering or leaving range.
func (m *Metrics) ObserveBeacon(transition string, known bool) {
	m.beacons.WithLabelValues(transition, strconv.FormatBool(known)).Inc()
}

// IncBridgeRestarts counts a restart of the managed BLE bridge.
func (m *Metrics) IncBridgeRestarts() {
	m.bridgeRestarts.Inc()
}

// Middleware counts HTTP requests labelled by chi route pattern, so path
// parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
