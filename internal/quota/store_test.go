package quota

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engagekit/engagekit/internal/models"
)

func testCeilings() Ceilings {
	return Ceilings{
		PerFamily: map[models.Family]int{
			models.FamilyLike:    60,
			models.FamilyComment: 30,
			models.FamilyFollow:  40,
			models.FamilyMessage: 20,
		},
		Default: 24,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quota.json")
	s, err := NewStore(path, testCeilings(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCheckEmptyWindow(t *testing.T) {
	s := newTestStore(t)

	status := s.Check("instagram", models.FamilyLike)
	if !status.Allowed {
		t.Error("empty window should allow")
	}
	if status.Remaining != 60 {
		t.Errorf("Remaining = %d, want 60", status.Remaining)
	}
	if status.Total != 60 {
		t.Errorf("Total = %d, want 60", status.Total)
	}
	// Empty window: resetAt is now + 24h.
	want := time.Now().Add(WindowSize)
	if diff := status.ResetAt.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("ResetAt = %v, want ~%v", status.ResetAt, want)
	}
}

func TestRemainingAfterRecords(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.Record("instagram", models.FamilyComment)
	}

	status := s.Check("instagram", models.FamilyComment)
	if status.Remaining != 25 {
		t.Errorf("Remaining = %d, want 25", status.Remaining)
	}
	if !status.Allowed {
		t.Error("Allowed = false below ceiling")
	}
}

func TestCeilingReached(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 20; i++ {
		s.Record("linkedin", models.FamilyMessage)
	}

	status := s.Check("linkedin", models.FamilyMessage)
	if status.Allowed {
		t.Error("Allowed = true at ceiling")
	}
	if status.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", status.Remaining)
	}
}

func TestDefaultCeilingForUnknownFamily(t *testing.T) {
	s := newTestStore(t)

	status := s.Check("instagram", models.Family("poke"))
	if status.Total != 24 {
		t.Errorf("Total = %d, want default 24", status.Total)
	}
	if !status.Allowed {
		t.Error("unknown family should still be allowed under the default ceiling")
	}
}

func TestPruneBoundary(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	s.now = func() time.Time { return base }

	// One record just inside the window, one just outside.
	k := key("x", models.FamilyLike)
	s.windows[k] = []time.Time{
		base.Add(-WindowSize + time.Second), // 23h59m59s old: survives
		base.Add(-WindowSize - time.Second), // 24h0m1s old: pruned
	}

	status := s.Check("x", models.FamilyLike)
	if got := status.Total - status.Remaining; got != 1 {
		t.Errorf("counted %d entries in window, want 1", got)
	}

	// ResetAt is the oldest survivor plus the window size.
	wantReset := base.Add(time.Second)
	if !status.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", status.ResetAt, wantReset)
	}
}

func TestPrunedViewPersistedOnRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	s, err := NewStore(path, testCeilings(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	s.now = func() time.Time { return base }
	k := key("x", models.FamilyLike)
	s.windows[k] = []time.Time{base.Add(-25 * time.Hour), base.Add(-time.Hour)}

	s.Record("x", models.FamilyLike)

	// Reload from disk: the stale entry must be gone, the fresh entry and the
	// new record present.
	reloaded, err := NewStore(path, testCeilings(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(reloaded.windows[k]); got != 2 {
		t.Errorf("persisted window has %d entries, want 2", got)
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	s, err := NewStore(path, testCeilings(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		s.Record("instagram", models.FamilyLike)
	}

	// Simulate a process restart.
	restarted, err := NewStore(path, testCeilings(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	status := restarted.Check("instagram", models.FamilyLike)
	if status.Remaining != 57 {
		t.Errorf("Remaining after restart = %d, want 57", status.Remaining)
	}
}

func TestMalformedStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path, testCeilings(), slog.Default())
	if err != nil {
		t.Fatalf("NewStore() on malformed file: %v", err)
	}
	status := s.Check("instagram", models.FamilyLike)
	if status.Remaining != 60 {
		t.Errorf("Remaining = %d, want 60 (empty store)", status.Remaining)
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	s := newTestStore(t)

	s.Record("instagram", models.FamilyLike)
	s.Record("instagram", models.FamilyLike)
	s.Record("x", models.FamilyLike)

	if got := s.Check("instagram", models.FamilyLike).Remaining; got != 58 {
		t.Errorf("instagram Remaining = %d, want 58", got)
	}
	if got := s.Check("x", models.FamilyLike).Remaining; got != 59 {
		t.Errorf("x Remaining = %d, want 59", got)
	}
	if got := s.Check("instagram", models.FamilyComment).Remaining; got != 30 {
		t.Errorf("instagram comment Remaining = %d, want 30", got)
	}
}

func TestGateFamilyCollapse(t *testing.T) {
	s := newTestStore(t)
	g := NewGate(s)

	// Repost and profile view share the like family budget.
	g.Record("x", models.ActionRepost)
	g.Record("x", models.ActionProfileView)

	status := g.Check("x", models.ActionLike)
	if status.Remaining != 58 {
		t.Errorf("Remaining = %d, want 58 (family collapse)", status.Remaining)
	}
}

func TestGateEndToEndCeiling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	s, err := NewStore(path, Ceilings{
		PerFamily: map[models.Family]int{models.FamilyLike: 2},
		Default:   24,
	}, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	g := NewGate(s)

	// Ceiling 2: two allowed checks with records, then a refusal.
	for i := 0; i < 2; i++ {
		status := g.Check("a", models.ActionLike)
		if !status.Allowed {
			t.Fatalf("call %d refused below ceiling", i+1)
		}
		g.Record("a", models.ActionLike)
	}

	status := g.Check("a", models.ActionLike)
	if status.Allowed {
		t.Error("third call allowed over ceiling 2")
	}
	if status.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", status.Remaining)
	}
}
