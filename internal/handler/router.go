package handler

import (
	"net/http"
	"time"

	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router exposing the shell boundary: session
// state, auth lifecycle, navigation and the record endpoints.
func NewRouter(
	sessions *service.SessionService,
	nav *service.Navigator,
	records *service.RecordsService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(durationMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(sessions))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Session state
		// GET  /v1/session
		// POST /v1/session/events
		r.Get("/session", getSessionHandler(sessions))
		r.Post("/session/events", postSessionEventHandler(sessions, logger))

		// Auth lifecycle
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", signUpHandler(sessions, logger))
			r.Post("/login", loginHandler(sessions, logger))
			r.Post("/logout", logoutHandler(sessions))
		})

		// Profile mutations
		r.Put("/profile", updateProfileHandler(sessions, logger))
		r.Delete("/profile", deleteAccountHandler(sessions, logger))

		// Navigation
		r.Get("/navigation", getNavigationHandler(nav))
		r.Post("/navigation", postNavigationHandler(nav, logger))
		r.Get("/navigation/menu", getMenuHandler(nav))

		// Records
		r.Post("/predictions", postPredictionHandler(records, sessions, logger))
		r.Get("/predictions", getPredictionsHandler(records, sessions))
		r.Post("/collections", postCollectionHandler(records, sessions, logger))

		// Activity counters
		r.Get("/metrics/session", sessionMetricsHandler(metrics))
	})

	return r
}

// durationMiddleware observes request latency per route pattern.
func durationMiddleware(metrics *observability.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = r.URL.Path
			}
			metrics.RecordRequestDuration(r.Method+" "+pattern, time.Since(start))
		})
	}
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"checkedAt": time.Now().Format(time.RFC3339),
		})
	}
}

// readyzHandler reports ready only once the startup session resolution
// has completed; serving navigation before that would violate the
// "no decision while resolving" rule.
func readyzHandler(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions.Current().Resolving {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "resolving"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func sessionMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSessionSnapshot())
	}
}
