// Package httpapi assembles the public HTTP surface. Feature handlers
// register their own routes and middleware; this layer only adds the
// cross-cutting pieces every route shares.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"globalreach/internal/platform/metrics"
	"globalreach/internal/platform/middleware"
	"globalreach/pkg/platform/httputil"
)

// Registrar is anything that mounts routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker is an infrastructure dependency that can report liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependency pairs a health checker with its name for the health report.
type Dependency struct {
	Name    string
	Checker HealthChecker
}

// New builds the router: CORS, latency metrics, health and metrics
// endpoints, then every feature handler.
func New(logger *slog.Logger, m *metrics.Metrics, allowedOrigins []string, deps []Dependency, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Admin-Token", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if m != nil {
		r.Use(middleware.Latency(m))
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/healthz", healthHandler(logger, deps))

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func healthHandler(logger *slog.Logger, deps []Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{"status": "ok"}
		for _, dep := range deps {
			if err := dep.Checker.Health(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", dep.Name, "error", err)
				report[dep.Name] = "down"
				report["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			report[dep.Name] = "ok"
		}
		httputil.WriteJSON(w, status, report)
	}
}
