// Package session provides durable per-platform browser authentication state.
//
// A session is the minimal serialized state (cookies plus a localStorage
// snapshot) needed to resume an authenticated browsing context without
// re-running a login flow. Sessions are stored one JSON file per platform
// and soft-expire after a retention window; stale files are kept on disk so
// operators can inspect them.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/engagekit/engagekit/internal/models"
)

var (
	// ErrNotFound is returned when no usable session exists for a platform.
	ErrNotFound = errors.New("session not found")
	// ErrNoAuthCookie is returned by Save when the session lacks the
	// platform's authentication cookie. The write is skipped so a logged-out
	// context can never clobber a previously valid session on disk.
	ErrNoAuthCookie = errors.New("session missing auth cookie")
)

// Session is the serialized authentication state for one platform.
type Session struct {
	Platform     string            `json:"platform"`
	Cookies      []models.Cookie   `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// HasCookie reports whether the session carries a cookie with the given name
// and a non-empty value.
func (s *Session) HasCookie(name string) bool {
	for _, c := range s.Cookies {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

// Store persists sessions as one JSON file per platform under dir.
type Store struct {
	dir       string
	retention time.Duration
	logger    *slog.Logger
}

// NewStore creates a session store rooted at dir. Sessions older than
// retention are treated as not found on load (soft expiry).
func NewStore(dir string, retention time.Duration, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &Store{dir: dir, retention: retention, logger: logger}, nil
}

// path returns the session file path for a platform.
func (s *Store) path(platform string) string {
	return filepath.Join(s.dir, platform+".json")
}

// Load reads the session for a platform.
//
// A missing file, a malformed file, or a session whose UpdatedAt is older
// than the retention window all yield ErrNotFound. Malformed and stale files
// are logged but left in place for inspection.
func (s *Store) Load(platform string) (*Session, error) {
	data, err := os.ReadFile(s.path(platform))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		s.logger.Warn("failed to read session file", "platform", platform, "error", err)
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("malformed session file, treating as not found", "platform", platform, "error", err)
		return nil, ErrNotFound
	}

	if age := time.Since(sess.UpdatedAt); age > s.retention {
		s.logger.Info("session expired, treating as not found",
			"platform", platform,
			"age", age.Round(time.Minute),
			"retention", s.retention,
		)
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Save writes the session for a platform, guarded by the auth cookie check:
// a session that does not carry authCookie with a non-empty value is refused
// with ErrNoAuthCookie and the file on disk is left untouched.
//
// The write is atomic (temp file then rename) so a crash mid-write cannot
// corrupt an existing session.
func (s *Store) Save(platform string, sess *Session, authCookie string) error {
	if !sess.HasCookie(authCookie) {
		s.logger.Warn("refusing to save session without auth cookie",
			"platform", platform,
			"auth_cookie", authCookie,
			"cookie_count", len(sess.Cookies),
		)
		return ErrNoAuthCookie
	}

	sess.Platform = platform
	sess.UpdatedAt = time.Now()
	if sess.CreatedAt.IsZero() {
		if prev, err := s.Load(platform); err == nil {
			sess.CreatedAt = prev.CreatedAt
		} else {
			sess.CreatedAt = sess.UpdatedAt
		}
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := s.path(platform) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path(platform)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.logger.Info("session saved", "platform", platform, "cookies", len(sess.Cookies))
	return nil
}

// Delete removes a platform's session file. Missing files are not an error.
func (s *Store) Delete(platform string) error {
	if err := os.Remove(s.path(platform)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Summary describes a persisted session without exposing cookie values.
type Summary struct {
	Platform  string    `json:"platform"`
	Cookies   int       `json:"cookies"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Expired   bool      `json:"expired"`
}

// List returns summaries of every session file on disk, including expired
// ones (they are still inspectable even though Load refuses them).
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, Summary{
			Platform:  sess.Platform,
			Cookies:   len(sess.Cookies),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
			Expired:   time.Since(sess.UpdatedAt) > s.retention,
		})
	}
	return out, nil
}
