//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/maremma/maremma/internal/store"
)

// startTestPostgres brings up a disposable Postgres container and
// returns a store.Store bound to it, torn down on test cleanup.
func startTestPostgres(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("maremma_test"),
		postgres.WithUsername("maremma"),
		postgres.WithPassword("maremma"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestPostgresStoreReconcileAndCheckResultRoundTrip(t *testing.T) {
	s := startTestPostgres(t)
	ctx := context.Background()

	group := store.HostGroup{ID: uuid.New(), Name: "web"}
	require.NoError(t, s.UpsertHostGroup(ctx, group))

	host := store.Host{ID: uuid.New(), Name: "web1", Hostname: "web1.internal", Check: "none"}
	require.NoError(t, s.UpsertHost(ctx, host, []string{"web"}))

	svc := store.Service{ID: uuid.New(), Name: "http-check", Type: "http", CronSchedule: "* * * * * *"}
	require.NoError(t, s.UpsertService(ctx, svc, []string{"web"}))

	require.NoError(t, s.ReconcileServiceChecks(ctx, uuid.Nil, svc.ID, false))

	checks, err := s.ListServiceChecks(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 1)

	now := time.Now()
	require.NoError(t, s.SetCheckResult(ctx, checks[0].ID, store.StatusOK, "OK", 5*time.Millisecond, now, now.Add(time.Minute)))

	history, err := s.GetHistory(ctx, checks[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1, "SetCheckResult must write exactly one history row")
	require.Equal(t, store.StatusOK, history[0].Status)
}

func TestPostgresStoreSessionRoundTrip(t *testing.T) {
	s := startTestPostgres(t)
	ctx := context.Background()

	session := store.Session{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.UserID, got.UserID)

	require.NoError(t, s.DeleteSession(ctx, session.ID))
	_, err = s.GetSession(ctx, session.ID)
	require.Error(t, err)
}
