package observability

import (
	"time"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the shell core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	sessionResolutions *prometheus.CounterVec
	authAttempts       *prometheus.CounterVec
	navRequests        *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	authEvents         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "olipack_request_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessionResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "olipack_session_resolutions_total",
				Help: "Session resolutions by outcome (remote, mirror, none).",
			},
			[]string{"outcome"},
		),
		authAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "olipack_auth_attempts_total",
				Help: "Auth mutations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		navRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "olipack_nav_requests_total",
				Help: "Navigation requests by decision (accepted, denied).",
			},
			[]string{"decision"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "olipack_store_errors_total",
				Help: "Total errors from the remote account store.",
			},
			[]string{"service"},
		),
		authEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "olipack_auth_events_total",
				Help: "External auth-state notifications applied.",
			},
			[]string{"kind"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrSessionResolution increments the resolution counter for an outcome.
func (m *Metrics) IncrSessionResolution(outcome string) {
	m.sessionResolutions.WithLabelValues(outcome).Inc()
}

// IncrAuthAttempt increments the auth mutation counter.
func (m *Metrics) IncrAuthAttempt(operation, outcome string) {
	m.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// IncrNavRequest increments the navigation request counter.
func (m *Metrics) IncrNavRequest(decision string) {
	m.navRequests.WithLabelValues(decision).Inc()
}

// IncrStoreError increments the remote store error counter.
func (m *Metrics) IncrStoreError(service string) {
	m.storeErrors.WithLabelValues(service).Inc()
}

// IncrAuthEvent increments the external auth event counter.
func (m *Metrics) IncrAuthEvent(kind domain.AuthEventKind) {
	m.authEvents.WithLabelValues(string(kind)).Inc()
}

// SessionSnapshot summarizes session and navigation activity for the
// GET /v1/metrics/session endpoint.
type SessionSnapshot struct {
	RemoteResolutions float64 `json:"remoteResolutions"`
	MirrorResolutions float64 `json:"mirrorResolutions"`
	EmptyResolutions  float64 `json:"emptyResolutions"`
	NavAccepted       float64 `json:"navAccepted"`
	NavDenied         float64 `json:"navDenied"`
	NavDenyRate       float64 `json:"navDenyRate"`
}

// GetSessionSnapshot reads current counter values.
// Note: Prometheus counters expose cumulative values.
func (m *Metrics) GetSessionSnapshot() *SessionSnapshot {
	accepted := getCounterValue(m.navRequests, "accepted")
	denied := getCounterValue(m.navRequests, "denied")

	denyRate := float64(0)
	if accepted+denied > 0 {
		denyRate = denied / (accepted + denied)
	}

	return &SessionSnapshot{
		RemoteResolutions: getCounterValue(m.sessionResolutions, "remote"),
		MirrorResolutions: getCounterValue(m.sessionResolutions, "mirror"),
		EmptyResolutions:  getCounterValue(m.sessionResolutions, "none"),
		NavAccepted:       accepted,
		NavDenied:         denied,
		NavDenyRate:       denyRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
