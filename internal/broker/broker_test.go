package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/memory"
)

func seedServiceCheck(t *testing.T, s store.Store) (store.Host, store.Service, store.ServiceCheck) {
	t.Helper()
	ctx := context.Background()

	host := store.Host{ID: uuid.New(), Name: "web1", Hostname: "web1.internal", Check: "none", Config: map[string]any{"timeout": 5}}
	require.NoError(t, s.UpsertHost(ctx, host, nil))

	svc := store.Service{ID: uuid.New(), Name: "http-check", Type: "http", CronSchedule: "*/30 * * * * *", ExtraConfig: map[string]any{"http_status": 200}}
	require.NoError(t, s.UpsertService(ctx, svc, nil))

	require.NoError(t, s.ReconcileServiceChecks(ctx, uuid.Nil, svc.ID, false))

	checksList, err := s.ListServiceChecks(ctx)
	require.NoError(t, err)
	require.Len(t, checksList, 1)

	return host, svc, checksList[0]
}

func TestBrokerNextServiceCheckClaimsAndBlocksRedispatch(t *testing.T) {
	s := memory.New()
	_, _, sc := seedServiceCheck(t, s)

	b := New(s, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	got, _, ok, err := b.NextServiceCheck(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sc.ID, got.ID)

	_, _, ok2, err := b.NextServiceCheck(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok2, "claimed check must not be redispatched")
}

func TestBrokerSetCheckResultAdvancesSchedule(t *testing.T) {
	s := memory.New()
	_, svc, sc := seedServiceCheck(t, s)

	b := New(s, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	now := time.Now()
	result := checks.Result{Status: store.StatusOK, ResultText: "OK", TimeElapsed: 10 * time.Millisecond, Timestamp: now}
	require.NoError(t, b.SetCheckResult(context.Background(), sc, svc, now, result, 5))

	updated, err := s.GetServiceCheck(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, updated.Status)
	assert.True(t, updated.NextCheck.After(now))

	history, err := s.ListServiceChecks(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestBrokerSetCheckResultAppendsExactlyOneHistoryRow(t *testing.T) {
	s := memory.New()
	_, svc, sc := seedServiceCheck(t, s)

	b := New(s, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	now := time.Now()
	result := checks.Result{Status: store.StatusOK, ResultText: "OK", TimeElapsed: 10 * time.Millisecond, Timestamp: now}
	require.NoError(t, b.SetCheckResult(context.Background(), sc, svc, now, result, 5))

	rows, err := s.GetHistory(context.Background(), sc.ID, 100)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "SetCheckResult must not be double-written to history")
}

func TestBrokerGetRunnableCheckMergesHostOverrides(t *testing.T) {
	s := memory.New()
	host, svc, sc := seedServiceCheck(t, s)

	b := New(s, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	runnable, err := b.GetRunnableCheck(context.Background(), sc, svc)
	require.NoError(t, err)
	assert.Equal(t, host.ID, runnable.Host.ID)
	assert.EqualValues(t, 200, runnable.Target.ExtraConfig["http_status"])
	assert.EqualValues(t, 5, runnable.Target.ExtraConfig["timeout"])

	// Second call should hit the overlay cache for the same host config.
	runnable2, err := b.GetRunnableCheck(context.Background(), sc, svc)
	require.NoError(t, err)
	assert.Equal(t, runnable.Target.ExtraConfig, runnable2.Target.ExtraConfig)
}

func TestBrokerShutdownDrainsQueue(t *testing.T) {
	s := memory.New()
	b := New(s, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.NoError(t, b.Shutdown(context.Background()))
}
