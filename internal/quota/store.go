// Package quota enforces per-(platform, action-family) sliding-window
// ceilings. The window is a trailing 24 hours from now, not a calendar day,
// so remaining quota refills continuously as old actions age out.
package quota

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/engagekit/engagekit/internal/models"
)

// WindowSize is the trailing window actions are counted over.
const WindowSize = 24 * time.Hour

// Ceilings configures the per-family daily ceilings.
type Ceilings struct {
	PerFamily map[models.Family]int
	// Default applies to families without an explicit ceiling. A family is
	// never unlimited; unknown families get this conservative default.
	Default int
}

// Ceiling returns the ceiling for a family.
func (c Ceilings) Ceiling(family models.Family) int {
	if n, ok := c.PerFamily[family]; ok && n > 0 {
		return n
	}
	return c.Default
}

// Store is the durable sliding-window counter. All windows for all platforms
// live in one JSON file that is read fully on startup and rewritten fully on
// every recorded action (write-through; action volume is tens per day, so
// durability wins over throughput).
type Store struct {
	mu       sync.Mutex
	windows  map[string][]time.Time // key: platform + "/" + family
	path     string
	ceilings Ceilings
	logger   *slog.Logger
	now      func() time.Time
}

// persistedStore is the on-disk shape.
type persistedStore struct {
	Windows map[string][]time.Time `json:"windows"`
}

// NewStore creates a store backed by the file at path. A missing file starts
// an empty store; a malformed file is logged and treated as empty rather than
// failing startup.
func NewStore(path string, ceilings Ceilings, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create quota dir: %w", err)
		}
	}

	s := &Store{
		windows:  make(map[string][]time.Time),
		path:     path,
		ceilings: ceilings,
		logger:   logger,
		now:      time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read quota store: %w", err)
		}
		return s, nil
	}

	var persisted persistedStore
	if err := json.Unmarshal(data, &persisted); err != nil {
		logger.Warn("malformed quota store, starting empty", "path", path, "error", err)
		return s, nil
	}
	if persisted.Windows != nil {
		s.windows = persisted.Windows
	}
	return s, nil
}

func key(platform string, family models.Family) string {
	return platform + "/" + string(family)
}

// prune drops timestamps older than the trailing window. Caller holds mu.
// The pruned slice replaces the in-memory window, so the next Record persists
// the pruned view.
func (s *Store) prune(k string, now time.Time) []time.Time {
	window := s.windows[k]
	cutoff := now.Add(-WindowSize)
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.windows[k] = kept
	return kept
}

// Check returns the current window status for a platform/family pair without
// recording anything. Pruning happens lazily here, in memory only; the file
// is not rewritten until the next Record.
func (s *Store) Check(platform string, family models.Family) models.QuotaStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	window := s.prune(key(platform, family), now)
	total := s.ceilings.Ceiling(family)

	remaining := total - len(window)
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(WindowSize)
	if len(window) > 0 {
		oldest := window[0]
		for _, ts := range window[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		resetAt = oldest.Add(WindowSize)
	}

	return models.QuotaStatus{
		Allowed:   len(window) < total,
		Remaining: remaining,
		Total:     total,
		ResetAt:   resetAt,
	}
}

// Record appends one action timestamp and persists the whole store before
// returning, so a crash loses at most the in-flight action. A persistence
// failure is logged and swallowed; the in-memory window stays authoritative
// for the rest of the process.
func (s *Store) Record(platform string, family models.Family) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key(platform, family)
	s.prune(k, now)
	s.windows[k] = append(s.windows[k], now)

	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist quota store", "path", s.path, "error", err)
	}
}

// persist writes the whole store atomically. Caller holds mu.
func (s *Store) persist() error {
	// Stable key order keeps diffs readable when operators inspect the file.
	keys := make([]string, 0, len(s.windows))
	for k := range s.windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := persistedStore{Windows: make(map[string][]time.Time, len(keys))}
	for _, k := range keys {
		out.Windows[k] = s.windows[k]
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal quota store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write quota store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace quota store: %w", err)
	}
	return nil
}
