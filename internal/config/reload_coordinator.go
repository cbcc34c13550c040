package config

import (
	"fmt"
	"sync/atomic"
)

// Snapshot holds the currently-live Configuration behind an
// atomic.Pointer so readers never observe a partially-applied reload.
// The zero value is unusable; construct with NewSnapshot.
type Snapshot struct {
	ptr atomic.Pointer[Configuration]
}

// NewSnapshot wraps an already-validated Configuration for concurrent
// access.
func NewSnapshot(cfg *Configuration) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(cfg)
	return s
}

// Current returns the live Configuration. Safe for concurrent callers;
// the returned pointer is never mutated in place, only replaced.
func (s *Snapshot) Current() *Configuration {
	return s.ptr.Load()
}

// Reload parses and validates a full new Configuration from path and,
// only on success, atomically replaces the live snapshot. On failure
// the previous snapshot remains live and the validation error is
// returned to the caller unchanged — there is no partial-apply,
// diffing, or per-component reload step; every reader either sees the
// old Configuration in full or the new one in full.
func (s *Snapshot) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	s.ptr.Store(cfg)
	return nil
}

// ReloadFromJSON is Reload's in-memory counterpart, used by the web
// collaborator's config-reload endpoint.
func (s *Snapshot) ReloadFromJSON(data []byte) error {
	cfg, err := LoadFromJSON(data)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	s.ptr.Store(cfg)
	return nil
}
