// Package mw contains HTTP middleware for the engagekit service.
package mw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signatureWindow bounds how old a signed request may be.
const signatureWindow = 5 * time.Minute

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Secret signs both the HMAC request headers and the HS256 bearer
	// tokens. Empty means authentication is not configured.
	Secret string

	// AllowUnauthenticated lets requests through when no secret is set.
	AllowUnauthenticated bool

	Logger *slog.Logger
}

// Auth returns middleware accepting either of two credentials:
//  1. Signed headers (service-to-service): X-Engaged-Signature is an
//     HMAC-SHA256 over "timestamp:path" keyed by the shared secret, with
//     X-Engaged-Timestamp bounding replay.
//  2. Authorization: Bearer with an HS256 JWT signed by the same secret.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	var warnOnce sync.Once

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Secret == "" {
				if cfg.AllowUnauthenticated {
					warnOnce.Do(func() {
						if cfg.Logger != nil {
							cfg.Logger.Warn("authentication disabled, all requests accepted")
						}
					})
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, `{"error":"authentication not configured"}`, http.StatusUnauthorized)
				return
			}

			if ok, err := validSignedHeaders(r, cfg.Secret); ok {
				next.ServeHTTP(w, r)
				return
			} else if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Debug("signed header validation failed", "error", err)
				}
				http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing credentials"}`, http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			if err := validBearerToken(token, cfg.Secret); err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Debug("JWT validation failed", "error", err)
				}
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validSignedHeaders checks the X-Engaged-* headers. The (false, nil) return
// means the request did not attempt signed-header auth at all.
func validSignedHeaders(r *http.Request, secret string) (bool, error) {
	signature := r.Header.Get("X-Engaged-Signature")
	timestamp := r.Header.Get("X-Engaged-Timestamp")
	if signature == "" || timestamp == "" {
		return false, nil
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false, ErrInvalidSignature
	}
	age := time.Since(time.Unix(ts, 0))
	if age > signatureWindow || age < -signatureWindow {
		return false, ErrTimestampExpired
	}

	message := timestamp + ":" + r.URL.Path
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return false, ErrInvalidSignature
	}
	return true, nil
}

// validBearerToken verifies an HS256 JWT against the shared secret.
func validBearerToken(tokenString, secret string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidSignature
	}
	return nil
}

// Errors
var (
	ErrTimestampExpired = &AuthError{Message: "timestamp expired"}
	ErrInvalidSignature = &AuthError{Message: "invalid signature"}
)

// AuthError represents an authentication error.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// SignRequest stamps the signed-header credentials onto an outbound request.
// Exposed for clients and tests.
func SignRequest(r *http.Request, secret string) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + ":" + r.URL.Path))
	r.Header.Set("X-Engaged-Timestamp", timestamp)
	r.Header.Set("X-Engaged-Signature", hex.EncodeToString(mac.Sum(nil)))
}
