package shepherd

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/memory"
)

func TestServiceCheckCleanTaskReclaimsStuckChecks(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	host := store.Host{ID: uuid.New(), Name: "web1", Hostname: "web1.internal", Check: "none"}
	require.NoError(t, s.UpsertHost(ctx, host, nil))
	svc := store.Service{ID: uuid.New(), Name: "http-check", Type: "http", CronSchedule: "* * * * * *"}
	require.NoError(t, s.UpsertService(ctx, svc, nil))
	require.NoError(t, s.ReconcileServiceChecks(ctx, uuid.Nil, svc.ID, false))

	checksList, err := s.ListServiceChecks(ctx)
	require.NoError(t, err)
	require.Len(t, checksList, 1)

	require.NoError(t, s.ClaimCheck(ctx, checksList[0].ID, time.Now().Add(-10*time.Minute)))

	task := ServiceCheckCleanTask{Store: s}
	require.NoError(t, task.Run(ctx))

	updated, err := s.GetServiceCheck(ctx, checksList[0].ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusPending, updated.Status)
}

func TestSessionCleanTaskDeletesExpired(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	sess := store.Session{ID: uuid.New(), UserID: uuid.New(), ExpiresAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, s.CreateSession(ctx, sess))

	task := SessionCleanTask{Store: s}
	require.NoError(t, task.Run(ctx))

	_, err := s.GetSession(ctx, sess.ID)
	require.Error(t, err)
}

func TestShepherdTickRunsEveryTaskOnFirstTick(t *testing.T) {
	s := memory.New()
	sh := New(nil, ServiceCheckCleanTask{Store: s}, SessionCleanTask{Store: s})
	sh.tick(context.Background())

	require.NotZero(t, sh.lastRun["service_check_clean"])
	require.NotZero(t, sh.lastRun["session_clean"])
}
