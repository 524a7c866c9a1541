package mw

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func authedHandler(cfg AuthConfig) http.Handler {
	return Auth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthSignedHeaders(t *testing.T) {
	const secret = "test-secret"
	handler := authedHandler(AuthConfig{Secret: secret, Logger: slog.Default()})

	t.Run("valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
		SignRequest(req, secret)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
		SignRequest(req, "other-secret")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("signature over wrong path", func(t *testing.T) {
		signed := httptest.NewRequest(http.MethodPost, "/v1/other", nil)
		SignRequest(signed, secret)

		req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
		req.Header.Set("X-Engaged-Timestamp", signed.Header.Get("X-Engaged-Timestamp"))
		req.Header.Set("X-Engaged-Signature", signed.Header.Get("X-Engaged-Signature"))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("expired timestamp", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
		SignRequest(req, secret)
		req.Header.Set("X-Engaged-Timestamp", strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAuthBearerToken(t *testing.T) {
	const secret = "test-secret"
	handler := authedHandler(AuthConfig{Secret: secret, Logger: slog.Default()})

	makeToken := func(t *testing.T, signingSecret string, method jwt.SigningMethod) string {
		t.Helper()
		token := jwt.NewWithClaims(method, jwt.MapClaims{
			"sub": "scheduler",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(signingSecret))
		if err != nil {
			t.Fatalf("signing token: %v", err)
		}
		return signed
	}

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quota/instagram", nil)
		req.Header.Set("Authorization", "Bearer "+makeToken(t, secret, jwt.SigningMethodHS256))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quota/instagram", nil)
		req.Header.Set("Authorization", "Bearer "+makeToken(t, "other-secret", jwt.SigningMethodHS256))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quota/instagram", nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAuthUnconfigured(t *testing.T) {
	t.Run("open when explicitly allowed", func(t *testing.T) {
		handler := authedHandler(AuthConfig{AllowUnauthenticated: true, Logger: slog.Default()})

		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("closed by default", func(t *testing.T) {
		handler := authedHandler(AuthConfig{Logger: slog.Default()})

		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}
