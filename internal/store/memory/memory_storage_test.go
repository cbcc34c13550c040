package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/store"
)

func TestGetHistoryOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	checkID := uuid.New()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendHistory(ctx, store.ServiceCheckHistory{
			ServiceCheckID: checkID,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			Status:         store.StatusOK,
		}))
	}

	history, err := s.GetHistory(ctx, checkID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 0; i < len(history)-1; i++ {
		assert.True(t, history[i].Timestamp.After(history[i+1].Timestamp))
	}
}

func TestGetHistoryDefaultsLimitWhenNonPositive(t *testing.T) {
	s := New()
	ctx := context.Background()
	checkID := uuid.New()
	require.NoError(t, s.AppendHistory(ctx, store.ServiceCheckHistory{ServiceCheckID: checkID, Timestamp: time.Now(), Status: store.StatusOK}))

	history, err := s.GetHistory(ctx, checkID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestListHostsAndListServices(t *testing.T) {
	s := New()
	ctx := context.Background()

	host := store.Host{ID: uuid.New(), Name: "web1", Hostname: "web1.internal", Check: "none"}
	require.NoError(t, s.UpsertHost(ctx, host, nil))
	svc := store.Service{ID: uuid.New(), Name: "http-check", Type: "http", CronSchedule: "* * * * * *"}
	require.NoError(t, s.UpsertService(ctx, svc, nil))

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)

	services, err := s.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 1)
}
