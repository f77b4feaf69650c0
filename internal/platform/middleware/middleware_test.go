package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"globalreach/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatalf("expected generated request id in context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected response header to echo request id")
	}
}

func TestRequestIDHonorsInbound(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req-abc" {
		t.Fatalf("expected inbound request id to be kept, got %q", seen)
	}
}

func TestClientMetadata(t *testing.T) {
	var ip, agent string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		agent = requestcontext.UserAgent(r.Context())
	}))

	t.Run("forwarded chain keeps first hop", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		req.Header.Set("User-Agent", "facebookexternalua")
		h.ServeHTTP(httptest.NewRecorder(), req)

		if ip != "203.0.113.9" {
			t.Fatalf("expected first forwarded hop, got %q", ip)
		}
		if agent != "facebookexternalua" {
			t.Fatalf("expected user agent in context, got %q", agent)
		}
	})

	t.Run("falls back to remote addr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "198.51.100.7:41234"
		h.ServeHTTP(httptest.NewRecorder(), req)

		if ip != "198.51.100.7" {
			t.Fatalf("expected remote addr host, got %q", ip)
		}
	})
}

func TestRecoveryConvertsPanic(t *testing.T) {
	h := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestContentTypeJSONRejectsForms(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for form content type, got %d", rec.Code)
	}

	// GET requests pass regardless of content type.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected GET to pass, got %d", rec.Code)
	}
}

type fakeValidator struct {
	claims *JWTClaims
	err    error
}

func (f *fakeValidator) ValidateToken(string) (*JWTClaims, error) {
	return f.claims, f.err
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		h := RequireAuth(&fakeValidator{}, discardLogger())(okHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		h := RequireAuth(&fakeValidator{err: errors.New("expired")}, discardLogger())(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
		}
	})

	t.Run("valid token sets subject", func(t *testing.T) {
		var subject string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject = requestcontext.Subject(r.Context())
		})
		h := RequireAuth(&fakeValidator{claims: &JWTClaims{Subject: "operator-1"}}, discardLogger())(inner)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if subject != "operator-1" {
			t.Fatalf("expected subject in context, got %q", subject)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	t.Run("unconfigured hash closes routes", func(t *testing.T) {
		h := RequireAdmin("", discardLogger())(okHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 with no hash configured, got %d", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		h := RequireAdmin(string(hash), discardLogger())(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Admin-Token", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for wrong token, got %d", rec.Code)
		}
	})

	t.Run("correct token via header", func(t *testing.T) {
		h := RequireAdmin(string(hash), discardLogger())(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Admin-Token", "secret-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for correct token, got %d", rec.Code)
		}
	})

	t.Run("correct token via bearer", func(t *testing.T) {
		h := RequireAdmin(string(hash), discardLogger())(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for correct bearer token, got %d", rec.Code)
		}
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
