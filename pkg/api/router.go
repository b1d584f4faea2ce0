package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/api/handlers"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/metrics"
)

// Dependencies are the components the admin endpoints report on. Nil
// fields are allowed; see handlers.HealthHandler.
type Dependencies struct {
	Listeners   []handlers.Listener
	Mechanisms  handlers.MechanismLister
	PassThrough handlers.PassThroughStatus
}

// NewRouter creates the chi router for the admin server.
//
// Routes:
//   - GET /healthz - Liveness probe
//   - GET /healthz/ready - Readiness probe
//   - GET /status/passthrough - Pass-through server availability
//   - GET /metrics - Prometheus exposition (404 when metrics are disabled)
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.Listeners, deps.Mechanisms, deps.PassThrough)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})
	r.Get("/status/passthrough", healthHandler.PassThrough)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each admin request through the internal logger. Probe
// traffic is frequent, so completions are logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("Admin request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(start),
		)
	})
}
