package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/engagekit/engagekit/internal/config"
	"github.com/engagekit/engagekit/internal/platform"
	"github.com/engagekit/engagekit/internal/session"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	sessions, err := session.NewStore(t.TempDir(), 7*24*time.Hour, slog.Default())
	if err != nil {
		t.Fatalf("creating session store: %v", err)
	}
	return NewManager(&config.Config{}, platform.NewRegistry(), sessions, slog.Default())
}

func TestSurfaceBeforeStart(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Surface(context.Background(), "instagram")
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("Surface() error = %v, want ErrNotStarted", err)
	}
}

func TestSurfaceAfterClose(t *testing.T) {
	m := newTestManager(t)
	m.Close(context.Background())

	_, err := m.Surface(context.Background(), "instagram")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Surface() error = %v, want ErrClosed", err)
	}
}

// Surface calls for different platforms must not serialize on one shared
// lock; concurrent calls on an unstarted manager all return promptly.
func TestSurfaceConcurrent(t *testing.T) {
	m := newTestManager(t)

	platforms := []string{"instagram", "x", "linkedin"}
	var wg sync.WaitGroup
	errs := make(chan error, len(platforms)*4)
	for i := 0; i < 4; i++ {
		for _, name := range platforms {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := m.Surface(context.Background(), name)
				errs <- err
			}(name)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Surface calls deadlocked")
	}

	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrNotStarted) {
			t.Errorf("Surface() error = %v, want ErrNotStarted", err)
		}
	}
}

func TestRunningBeforeStart(t *testing.T) {
	m := newTestManager(t)
	if m.Running() {
		t.Error("Running() = true before Start")
	}
}

func TestSaveSessionNoContext(t *testing.T) {
	m := newTestManager(t)
	if err := m.SaveSession(context.Background(), "instagram"); err == nil {
		t.Error("SaveSession() = nil for platform without a context")
	}
}

func TestCloseContextNoContext(t *testing.T) {
	m := newTestManager(t)
	if err := m.CloseContext(context.Background(), "instagram"); err != nil {
		t.Errorf("CloseContext() error = %v for unknown platform", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := newTestManager(t)
	m.Close(context.Background())
	m.Close(context.Background())
}
