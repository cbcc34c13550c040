package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/broker"
	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.MemoryStore, store.ServiceCheck) {
	t.Helper()
	s := memory.New()
	b := broker.New(s, nil, slog.Default())
	go b.Run(context.Background())

	host := store.Host{ID: uuid.New(), Name: "web1", Hostname: "web1.local", Check: "none"}
	require.NoError(t, s.UpsertHost(context.Background(), host, nil))
	svc := store.Service{ID: uuid.New(), Name: "http", Type: "http", CronSchedule: "* * * * *"}
	require.NoError(t, s.UpsertService(context.Background(), svc, nil))
	require.NoError(t, s.ReconcileServiceChecks(context.Background(), host.ID, svc.ID, true))

	checks, err := s.ListServiceChecks(context.Background())
	require.NoError(t, err)
	require.Len(t, checks, 1)

	return New(":0", s, b, slog.Default(), ""), s, checks[0]
}

func TestHandleListHosts(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/hosts", nil)
	rr := httptest.NewRecorder()

	srv.router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var hosts []store.Host
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&hosts))
	assert.Len(t, hosts, 1)
}

func TestHandleGetServiceCheckNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/service_check/"+uuid.New().String(), nil)
	rr := httptest.NewRecorder()

	srv.router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMutationRoutesDispatchBrokerCommands(t *testing.T) {
	srv, s, check := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/service_check/"+check.ID.String()+"/urgent", nil)
	rr := httptest.NewRecorder()
	srv.router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Eventually(t, func() bool {
		updated, err := s.GetServiceCheck(context.Background(), check.ID)
		return err == nil && updated.Status == store.StatusUrgent
	}, time.Second, 10*time.Millisecond)

	req = httptest.NewRequest(http.MethodPost, "/service_check/"+check.ID.String()+"/disable", nil)
	rr = httptest.NewRecorder()
	srv.router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Eventually(t, func() bool {
		updated, err := s.GetServiceCheck(context.Background(), check.ID)
		return err == nil && updated.Status == store.StatusDisabled
	}, time.Second, 10*time.Millisecond)

	req = httptest.NewRequest(http.MethodPost, "/service_check/"+check.ID.String()+"/enable", nil)
	rr = httptest.NewRecorder()
	srv.router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Eventually(t, func() bool {
		updated, err := s.GetServiceCheck(context.Background(), check.ID)
		return err == nil && updated.Status == store.StatusPending
	}, time.Second, 10*time.Millisecond)
}
