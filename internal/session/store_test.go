package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engagekit/engagekit/internal/models"
)

func newTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), retention, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func validSession() *Session {
	return &Session{
		Cookies: []models.Cookie{
			{Name: "sessionid", Value: "abc123", Domain: ".instagram.com"},
			{Name: "csrftoken", Value: "tok", Domain: ".instagram.com"},
		},
		LocalStorage: map[string]string{"ig_did": "xyz"},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t, 7*24*time.Hour)

	sess := validSession()
	if err := store.Save("instagram", sess, "sessionid"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := store.Load("instagram")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Platform != "instagram" {
		t.Errorf("Platform = %q, want instagram", loaded.Platform)
	}
	if len(loaded.Cookies) != 2 {
		t.Errorf("cookie count = %d, want 2", len(loaded.Cookies))
	}
	if loaded.LocalStorage["ig_did"] != "xyz" {
		t.Error("localStorage snapshot not round-tripped")
	}
	if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.IsZero() {
		t.Error("timestamps not set on save")
	}
}

func TestLoadMissing(t *testing.T) {
	store := newTestStore(t, time.Hour)
	if _, err := store.Load("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSaveGuardRefusesUnauthenticated(t *testing.T) {
	store := newTestStore(t, 7*24*time.Hour)

	// Save a valid session first.
	if err := store.Save("instagram", validSession(), "sessionid"); err != nil {
		t.Fatal(err)
	}

	// A logged-out context produces a session without the auth cookie; the
	// save must be refused and the good session left untouched.
	bad := &Session{Cookies: []models.Cookie{{Name: "csrftoken", Value: "tok"}}}
	if err := store.Save("instagram", bad, "sessionid"); !errors.Is(err, ErrNoAuthCookie) {
		t.Fatalf("Save() error = %v, want ErrNoAuthCookie", err)
	}

	loaded, err := store.Load("instagram")
	if err != nil {
		t.Fatalf("Load() after refused save: %v", err)
	}
	if !loaded.HasCookie("sessionid") {
		t.Error("valid session was clobbered by refused save")
	}
}

func TestSaveGuardEmptyCookieValue(t *testing.T) {
	store := newTestStore(t, time.Hour)
	sess := &Session{Cookies: []models.Cookie{{Name: "sessionid", Value: ""}}}
	if err := store.Save("instagram", sess, "sessionid"); !errors.Is(err, ErrNoAuthCookie) {
		t.Errorf("Save() with empty cookie value = %v, want ErrNoAuthCookie", err)
	}
}

func TestLoadExpired(t *testing.T) {
	store := newTestStore(t, 7*24*time.Hour)

	// Write a session file whose UpdatedAt is more than 7 days old directly;
	// the file exists but Load must report not found.
	sess := validSession()
	sess.Platform = "instagram"
	sess.CreatedAt = time.Now().Add(-10 * 24 * time.Hour)
	sess.UpdatedAt = time.Now().Add(-8 * 24 * time.Hour)
	data, _ := json.Marshal(sess)
	path := filepath.Join(store.dir, "instagram.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load("instagram"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() of expired session = %v, want ErrNotFound", err)
	}

	// Soft expiry: the file must still exist for inspection.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expired session file was removed: %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	store := newTestStore(t, time.Hour)
	path := filepath.Join(store.dir, "x.json")
	if err := os.WriteFile(path, []byte("{corrupt"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() of malformed file = %v, want ErrNotFound", err)
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	store := newTestStore(t, 7*24*time.Hour)

	if err := store.Save("x", &Session{
		Cookies: []models.Cookie{{Name: "auth_token", Value: "t1"}},
	}, "auth_token"); err != nil {
		t.Fatal(err)
	}
	first, err := store.Load("x")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)

	// Refresh with new cookies; CreatedAt must survive.
	if err := store.Save("x", &Session{
		Cookies: []models.Cookie{{Name: "auth_token", Value: "t2"}},
	}, "auth_token"); err != nil {
		t.Fatal(err)
	}
	second, err := store.Load("x")
	if err != nil {
		t.Fatal(err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on refresh: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Error("UpdatedAt not advanced on refresh")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if err := store.Delete("nonexistent"); err != nil {
		t.Errorf("Delete() of missing session: %v", err)
	}

	if err := store.Save("x", &Session{
		Cookies: []models.Cookie{{Name: "auth_token", Value: "t"}},
	}, "auth_token"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("x"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("x"); !errors.Is(err, ErrNotFound) {
		t.Error("session still loadable after Delete")
	}
}

func TestList(t *testing.T) {
	store := newTestStore(t, 7*24*time.Hour)

	if err := store.Save("instagram", validSession(), "sessionid"); err != nil {
		t.Fatal(err)
	}

	// One expired session written directly.
	old := validSession()
	old.Platform = "linkedin"
	old.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)
	data, _ := json.Marshal(old)
	if err := os.WriteFile(filepath.Join(store.dir, "linkedin.json"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	summaries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(summaries))
	}

	byPlatform := make(map[string]Summary)
	for _, s := range summaries {
		byPlatform[s.Platform] = s
	}
	if byPlatform["instagram"].Expired {
		t.Error("fresh session marked expired")
	}
	if !byPlatform["linkedin"].Expired {
		t.Error("stale session not marked expired")
	}
}
