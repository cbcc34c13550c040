package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/broker"
	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/memory"
)

type stubRunner struct {
	result checks.Result
	called chan struct{}
}

func (r *stubRunner) Run(context.Context, checks.Target) (checks.Result, error) {
	close(r.called)
	return r.result, nil
}

func TestSchedulerRunsDueCheckAndAdvancesSchedule(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	host := store.Host{ID: uuid.New(), Name: "web1", Hostname: "web1.internal", Check: "none"}
	require.NoError(t, s.UpsertHost(ctx, host, nil))
	svc := store.Service{ID: uuid.New(), Name: "stub", Type: "stub", CronSchedule: "* * * * * *"}
	require.NoError(t, s.UpsertService(ctx, svc, nil))
	require.NoError(t, s.ReconcileServiceChecks(ctx, uuid.Nil, svc.ID, false))
	initial, err := s.ListServiceChecks(ctx)
	require.NoError(t, err)
	require.Len(t, initial, 1)

	b := broker.New(s, nil, nil)
	brokerCtx, cancelBroker := context.WithCancel(context.Background())
	defer cancelBroker()
	go b.Run(brokerCtx)

	runner := &stubRunner{result: checks.Result{Status: store.StatusOK, ResultText: "OK", Timestamp: time.Now()}, called: make(chan struct{})}
	registry := checks.Registry{"stub": runner}
	hostCheckers := checks.NewHostCheckers()

	sched := New(b, registry, hostCheckers, 2, 1, nil)
	schedCtx, cancelSched := context.WithCancel(context.Background())
	defer cancelSched()
	go sched.Run(schedCtx)

	select {
	case <-runner.called:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never dispatched the due check")
	}

	require.Eventually(t, func() bool {
		checksList, err := s.ListServiceChecks(context.Background())
		require.NoError(t, err)
		return len(checksList) == 1 && checksList[0].Status == store.StatusOK &&
			checksList[0].NextCheck.After(initial[0].NextCheck)
	}, 5*time.Second, 50*time.Millisecond)
}
