// Package memory implements store.Store entirely in process memory,
// behind a single mutex (mirroring the Broker's single-writer
// discipline one level down) for use by unit tests that want a real
// Store without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maremma/maremma/internal/merrors"
	"github.com/maremma/maremma/internal/store"
)

const stuckCheckMinutes = 5

// MemoryStore is a map-backed store.Store.
type MemoryStore struct {
	mu sync.Mutex

	hosts        map[uuid.UUID]store.Host
	hostGroups   map[uuid.UUID]map[uuid.UUID]bool // hostID -> groupID set
	groups       map[uuid.UUID]store.HostGroup
	services     map[uuid.UUID]store.Service
	serviceGroup map[uuid.UUID]map[uuid.UUID]bool // serviceID -> groupID set
	checks       map[uuid.UUID]store.ServiceCheck
	history      map[uuid.UUID][]store.ServiceCheckHistory // serviceCheckID -> entries
	sessions     map[uuid.UUID]store.Session
}

// New returns an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		hosts:        make(map[uuid.UUID]store.Host),
		hostGroups:   make(map[uuid.UUID]map[uuid.UUID]bool),
		groups:       make(map[uuid.UUID]store.HostGroup),
		services:     make(map[uuid.UUID]store.Service),
		serviceGroup: make(map[uuid.UUID]map[uuid.UUID]bool),
		checks:       make(map[uuid.UUID]store.ServiceCheck),
		history:      make(map[uuid.UUID][]store.ServiceCheckHistory),
		sessions:     make(map[uuid.UUID]store.Session),
	}
}

func (m *MemoryStore) UpsertHost(_ context.Context, h store.Host, groupNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.ID] = h
	m.hostGroups[h.ID] = groupNameSetToIDs(m.groups, groupNames)
	return nil
}

func (m *MemoryStore) UpsertHostGroup(_ context.Context, g store.HostGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *MemoryStore) UpsertService(_ context.Context, s store.Service, groupNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
	m.serviceGroup[s.ID] = groupNameSetToIDs(m.groups, groupNames)
	return nil
}

func groupNameSetToIDs(groups map[uuid.UUID]store.HostGroup, names []string) map[uuid.UUID]bool {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make(map[uuid.UUID]bool)
	for id, g := range groups {
		if want[g.Name] {
			out[id] = true
		}
	}
	return out
}

func (m *MemoryStore) ReconcileServiceChecks(_ context.Context, localHostID, serviceID uuid.UUID, bindLocal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hostIDs []uuid.UUID
	if bindLocal {
		hostIDs = []uuid.UUID{localHostID}
	} else {
		svcGroups := m.serviceGroup[serviceID]
		for hostID, hg := range m.hostGroups {
			if intersects(hg, svcGroups) {
				hostIDs = append(hostIDs, hostID)
			}
		}
	}

	for _, hostID := range hostIDs {
		exists := false
		for _, c := range m.checks {
			if c.HostID == hostID && c.ServiceID == serviceID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		now := time.Now()
		id := uuid.New()
		m.checks[id] = store.ServiceCheck{
			ID:          id,
			HostID:      hostID,
			ServiceID:   serviceID,
			Status:      store.StatusPending,
			LastCheck:   time.Unix(0, 0),
			NextCheck:   now,
			LastUpdated: now,
		}
	}
	return nil
}

func intersects(a, b map[uuid.UUID]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

func (m *MemoryStore) GetHost(_ context.Context, id uuid.UUID) (store.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[id]
	if !ok {
		return store.Host{}, wrapNotFoundMemory(merrors.ErrHostNotFound, "host", id)
	}
	return h, nil
}

func (m *MemoryStore) GetService(_ context.Context, id uuid.UUID) (store.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return store.Service{}, wrapNotFoundMemory(merrors.ErrServiceNotFound, "service", id)
	}
	return s, nil
}

func (m *MemoryStore) GetServiceCheck(_ context.Context, id uuid.UUID) (store.ServiceCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return store.ServiceCheck{}, wrapNotFoundMemory(merrors.ErrServiceCheckNotFound, "service_check", id)
	}
	return c, nil
}

func (m *MemoryStore) ListServiceChecks(_ context.Context) ([]store.ServiceCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ServiceCheck, 0, len(m.checks))
	for _, c := range m.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *MemoryStore) ListHosts(_ context.Context) ([]store.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Host, 0, len(m.hosts))
	for _, h := range m.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListServices(_ context.Context) ([]store.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Service, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetHistory(_ context.Context, serviceCheckID uuid.UUID, limit int) ([]store.ServiceCheckHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	entries := append([]store.ServiceCheckHistory(nil), m.history[serviceCheckID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// NextServiceCheck returns the earliest-due, non-disabled check whose
// next_check has arrived (or whose status is urgent), without
// claiming it. Callers that intend to run it must follow with
// ClaimCheck.
func (m *MemoryStore) NextServiceCheck(_ context.Context, now time.Time) (store.ServiceCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *store.ServiceCheck
	for _, c := range m.checks {
		if c.Status == store.StatusDisabled || c.Status == store.StatusChecking {
			continue
		}
		runnable := c.Status == store.StatusUrgent || !c.NextCheck.After(now)
		if !runnable {
			continue
		}
		if best == nil || c.NextCheck.Before(best.NextCheck) {
			cc := c
			best = &cc
		}
	}
	if best == nil {
		return store.ServiceCheck{}, wrapNotFoundMemory(merrors.ErrServiceCheckNotFound, "runnable service_check", nil)
	}
	return *best, nil
}

func (m *MemoryStore) ClaimCheck(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return wrapNotFoundMemory(merrors.ErrServiceCheckNotFound, "service_check", id)
	}
	c.Status = store.StatusChecking
	c.LastUpdated = now
	m.checks[id] = c
	return nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id uuid.UUID, status store.CheckStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return wrapNotFoundMemory(merrors.ErrServiceCheckNotFound, "service_check", id)
	}
	c.Status = status
	c.LastUpdated = time.Now()
	m.checks[id] = c
	return nil
}

func (m *MemoryStore) SetCheckResult(_ context.Context, id uuid.UUID, status store.CheckStatus, resultText string, elapsed time.Duration, at time.Time, nextCheck time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return wrapNotFoundMemory(merrors.ErrServiceCheckNotFound, "service_check", id)
	}
	c.Status = status
	c.LastCheck = at
	c.NextCheck = nextCheck
	c.LastUpdated = at
	m.checks[id] = c

	m.history[id] = append(m.history[id], store.ServiceCheckHistory{
		ID:             uuid.New(),
		ServiceCheckID: id,
		Timestamp:      at,
		Status:         status,
		ResultText:     resultText,
		TimeElapsedMS:  elapsed.Milliseconds(),
	})
	return nil
}

func (m *MemoryStore) AppendHistory(_ context.Context, h store.ServiceCheckHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.history[h.ServiceCheckID] = append(m.history[h.ServiceCheckID], h)
	return nil
}

// ReapStuckChecks resets checking->pending for any check whose
// last_updated is older than olderThan, the claim having been lost.
func (m *MemoryStore) ReapStuckChecks(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.checks {
		if c.Status == store.StatusChecking && c.LastUpdated.Before(olderThan) {
			c.Status = store.StatusPending
			c.LastUpdated = time.Now()
			m.checks[id] = c
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ReapExpiredSessions(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// TrimHistory keeps, for every service check, only the maxPerCheck
// most recent history rows (ordered by timestamp descending).
func (m *MemoryStore) TrimHistory(_ context.Context, maxPerCheck int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trimmed := 0
	for id, entries := range m.history {
		if len(entries) <= maxPerCheck {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
		trimmed += len(entries) - maxPerCheck
		m.history[id] = entries[:maxPerCheck]
	}
	return trimmed, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return store.Session{}, wrapNotFoundMemory(merrors.ErrSQL, "session", id)
	}
	return s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

func wrapNotFoundMemory(sentinel error, kind string, id any) error {
	if id == nil {
		return sentinel
	}
	return &notFoundError{sentinel: sentinel, kind: kind, id: id}
}

type notFoundError struct {
	sentinel error
	kind     string
	id       any
}

func (e *notFoundError) Error() string {
	return e.kind + " " + uuidOrNil(e.id) + " not found"
}

func (e *notFoundError) Unwrap() error { return e.sentinel }

func uuidOrNil(id any) string {
	if u, ok := id.(uuid.UUID); ok {
		return u.String()
	}
	return "?"
}
