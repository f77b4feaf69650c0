package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"globalreach/internal/platform/metrics"
)

type staticChecker struct{ err error }

func (c staticChecker) Health(context.Context) error { return c.err }

type pingRegistrar struct{}

func (pingRegistrar) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func TestHealthzReportsDependencies(t *testing.T) {
	router := New(slog.New(slog.DiscardHandler), nil, []string{"*"}, []Dependency{
		{Name: "postgres", Checker: staticChecker{}},
		{Name: "redis", Checker: staticChecker{err: errors.New("down")}},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with a dependency down, got %d", rec.Code)
	}

	var report map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report["status"] != "degraded" || report["postgres"] != "ok" || report["redis"] != "down" {
		t.Fatalf("unexpected report: %v", report)
	}
}

func TestHealthzAllUp(t *testing.T) {
	router := New(slog.New(slog.DiscardHandler), nil, []string{"*"}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	router := New(slog.New(slog.DiscardHandler), metrics.New(), []string{"*"}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}

	// one scrape-visible request through the Latency middleware
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "globalreach_http_request_duration_seconds") {
		t.Fatalf("expected request duration metric in scrape output")
	}
}

func TestFeatureHandlersMounted(t *testing.T) {
	router := New(slog.New(slog.DiscardHandler), nil, []string{"*"}, nil, pingRegistrar{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("expected pong, got %d %q", rec.Code, rec.Body.String())
	}
}
