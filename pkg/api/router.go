package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/pkg/api/handlers"
)

// Backends are what the API reports on. Any of them may be nil; leave an
// interface unset rather than holding a nil pointer.
type Backends struct {
	// Status is the Channel Access server.
	Status handlers.StatusSource

	// PVs is the soft PV host.
	PVs handlers.PVStore

	// Autosave is the autosave store.
	Autosave handlers.HealthChecker

	// Metrics is served on /metrics when set.
	Metrics *prometheus.Registry
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /health/autosave - Autosave store health
//   - GET /api/v1/server - Server statistics
//   - GET /api/v1/clients - Connected clients
//   - GET /api/v1/pvs - Hosted PVs
//   - GET /api/v1/pvs/{name} - PV value
//   - PUT /api/v1/pvs/{name} - Write a PV
//   - GET /metrics - Prometheus metrics
func NewRouter(b Backends) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(b.Status, b.Autosave)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/autosave", healthHandler.Autosave)
	})

	serverHandler := handlers.NewServerHandler(b.Status)
	pvHandler := handlers.NewPVHandler(b.Status, b.PVs)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/server", serverHandler.Get)
		r.Get("/clients", serverHandler.Clients)
		r.Route("/pvs", func(r chi.Router) {
			r.Get("/", pvHandler.List)
			r.Get("/{name}", pvHandler.Get)
			r.Put("/{name}", pvHandler.Put)
		})
	})

	if b.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(b.Metrics, promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs requests using the internal logger. Health and metric
// scrapes are logged at DEBUG only.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := logger.Info
		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/health") {
			log = logger.Debug
		}
		log("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
