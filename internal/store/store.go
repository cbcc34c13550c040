// Package store defines maremma's persistence contract and domain
// types, satisfied by the embedded SQLite implementation, a PostgreSQL
// implementation, and an in-memory implementation used by tests.
// Choosing a backend from database_file is done in package driver.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckStatus is a ServiceCheck's runtime status.
type CheckStatus string

const (
	StatusPending  CheckStatus = "pending"
	StatusChecking CheckStatus = "checking"
	StatusOK       CheckStatus = "ok"
	StatusWarning  CheckStatus = "warning"
	StatusCritical CheckStatus = "critical"
	StatusError    CheckStatus = "error"
	StatusUnknown  CheckStatus = "unknown"
	StatusUrgent   CheckStatus = "urgent"
	StatusDisabled CheckStatus = "disabled"
)

// Host is a monitored machine or endpoint.
type Host struct {
	ID       uuid.UUID
	Name     string
	Hostname string
	Check    string
	Config   map[string]any
}

// HostGroup buckets hosts and services together.
type HostGroup struct {
	ID   uuid.UUID
	Name string
}

// Service describes a kind of check.
type Service struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Type         string
	CronSchedule string
	ExtraConfig  map[string]any
}

// ServiceCheck is the materialization of a (host, service) pair — the
// sole entity mutated at runtime.
type ServiceCheck struct {
	ID          uuid.UUID
	HostID      uuid.UUID
	ServiceID   uuid.UUID
	Status      CheckStatus
	LastCheck   time.Time
	NextCheck   time.Time
	LastUpdated time.Time
}

// ServiceCheckHistory is one completed run, appended by the Broker and
// trimmed by the Shepherd.
type ServiceCheckHistory struct {
	ID             uuid.UUID
	ServiceCheckID uuid.UUID
	Timestamp      time.Time
	Status         CheckStatus
	ResultText     string
	TimeElapsedMS  int64
}

// Session is a UUID-keyed, expiry-bound opaque blob used by the web
// collaborator.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	Data      []byte
}

// User is a web collaborator account.
type User struct {
	ID       uuid.UUID
	Username string
}

// Store is the persistence contract every backend (sqlite, postgres,
// memory) satisfies. The Broker is the only caller that writes
// ServiceCheck/ServiceCheckHistory rows at runtime; config
// reconciliation and the Shepherd are the only other writers, and only
// to Host/HostGroup/Service and to reaping/trimming, respectively.
type Store interface {
	// Reconciliation, driven by config load/reload.
	UpsertHost(ctx context.Context, h Host, groups []string) error
	UpsertHostGroup(ctx context.Context, g HostGroup) error
	UpsertService(ctx context.Context, s Service, groups []string) error
	// ReconcileServiceChecks ensures exactly one ServiceCheck row
	// exists per (host, service) pair implied by current group
	// membership (or local-service binding), creating pending rows
	// for newly-implied pairs. It never deletes rows for pairs config
	// no longer implies — see the prune policy in SPEC_FULL.md §4.1.
	ReconcileServiceChecks(ctx context.Context, localHostID, serviceID uuid.UUID, bindLocal bool) error

	GetHost(ctx context.Context, id uuid.UUID) (Host, error)
	GetService(ctx context.Context, id uuid.UUID) (Service, error)
	GetServiceCheck(ctx context.Context, id uuid.UUID) (ServiceCheck, error)
	ListServiceChecks(ctx context.Context) ([]ServiceCheck, error)

	// Read-only listings consumed directly by the web collaborator —
	// never by the Broker or Scheduler.
	ListHosts(ctx context.Context) ([]Host, error)
	ListServices(ctx context.Context) ([]Service, error)
	GetHistory(ctx context.Context, serviceCheckID uuid.UUID, limit int) ([]ServiceCheckHistory, error)

	// Broker command set (spec §4.3).
	NextServiceCheck(ctx context.Context, now time.Time) (ServiceCheck, error)
	ClaimCheck(ctx context.Context, id uuid.UUID, now time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status CheckStatus) error
	SetCheckResult(ctx context.Context, id uuid.UUID, status CheckStatus, resultText string, elapsed time.Duration, at time.Time, nextCheck time.Time) error
	AppendHistory(ctx context.Context, h ServiceCheckHistory) error

	// Shepherd queries.
	ReapStuckChecks(ctx context.Context, olderThan time.Time) (int, error)
	ReapExpiredSessions(ctx context.Context, now time.Time) (int, error)
	TrimHistory(ctx context.Context, maxPerCheck int) (int, error)

	// Session storage for the web collaborator.
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	Ping(ctx context.Context) error
	Close() error
}

