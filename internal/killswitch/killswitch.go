// Package killswitch implements the runtime kill switch (C5): a
// file-backed mutable flag with reason+actor+timestamp, read with a
// short-TTL cache to avoid a disk read on every dispatcher iteration, and
// written atomically via write-temp-then-rename.
package killswitch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/cache"
)

const cacheKey = "runtime_kill_switch"

// Switch is the process-wide handle to the runtime kill switch file.
type Switch struct {
	path  string
	ttl   time.Duration
	cache cache.TTLCache
}

// New returns a Switch backed by path, caching reads for ttl. A nil cache
// backend (no Redis configured) falls back to an in-process cache, which is
// sufficient since the spec requires at most one dispatcher process.
func New(path string, ttl time.Duration, c cache.TTLCache) *Switch {
	if c == nil {
		c = cache.NewLocalCache()
	}
	return &Switch{path: path, ttl: ttl, cache: c}
}

// IsEnabled reports whether the kill switch is currently active. Reads are
// cached for ttl; a cache miss re-reads the file (absence of the file means
// disabled).
func (s *Switch) IsEnabled(ctx context.Context) (bool, error) {
	state, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	return state.Enabled, nil
}

// State returns the full current state, bypassing nothing the cache
// wouldn't already bypass.
func (s *Switch) State(ctx context.Context) (domain.KillSwitchState, error) {
	return s.read(ctx)
}

func (s *Switch) read(ctx context.Context) (domain.KillSwitchState, error) {
	if cached, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var state domain.KillSwitchState
		if jsonErr := json.Unmarshal([]byte(cached), &state); jsonErr == nil {
			return state, nil
		}
	}

	state, err := s.readFromDisk()
	if err != nil {
		return domain.KillSwitchState{}, err
	}

	if encoded, err := json.Marshal(state); err == nil {
		_ = s.cache.Set(ctx, cacheKey, string(encoded), s.ttl)
	}
	return state, nil
}

func (s *Switch) readFromDisk() (domain.KillSwitchState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return domain.KillSwitchState{Enabled: false}, nil
	}
	if err != nil {
		return domain.KillSwitchState{}, fmt.Errorf("killswitch: read %s: %w", s.path, err)
	}
	var state domain.KillSwitchState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.KillSwitchState{}, fmt.Errorf("killswitch: parse %s: %w", s.path, err)
	}
	return state, nil
}

// SetEnabled activates the kill switch with reason and actor, atomically.
func (s *Switch) SetEnabled(ctx context.Context, reason, setBy string) error {
	return s.write(ctx, domain.KillSwitchState{
		Enabled: true,
		Reason:  reason,
		SetBy:   setBy,
		SetAt:   time.Now().UTC(),
	})
}

// SetDisabled deactivates the kill switch with reason and actor, atomically.
func (s *Switch) SetDisabled(ctx context.Context, reason, setBy string) error {
	return s.write(ctx, domain.KillSwitchState{
		Enabled: false,
		Reason:  reason,
		SetBy:   setBy,
		SetAt:   time.Now().UTC(),
	})
}

func (s *Switch) write(ctx context.Context, state domain.KillSwitchState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("killswitch: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".kill_switch_*.tmp")
	if err != nil {
		return fmt.Errorf("killswitch: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("killswitch: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("killswitch: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("killswitch: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("killswitch: rename: %w", err)
	}

	if encoded, err := json.Marshal(state); err == nil {
		_ = s.cache.Set(ctx, cacheKey, string(encoded), s.ttl)
	}
	return nil
}
