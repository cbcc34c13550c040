package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/store"
)

func testPushoverArgs() (store.ServiceCheck, store.Service, checks.Result) {
	return store.ServiceCheck{}, store.Service{Name: "disk-space"}, checks.Result{Status: store.StatusCritical, ResultText: "92% full"}
}

func TestPushoverNotifierExecuteSuccess(t *testing.T) {
	var gotBody pushoverPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewPushoverNotifier("token", "user", nil)
	n.apiURL = server.URL

	check, svc, result := testPushoverArgs()
	err := n.Execute(context.Background(), check, svc, result)

	require.NoError(t, err)
	assert.Equal(t, "token", gotBody.Token)
	assert.Equal(t, "92% full", gotBody.Message)
}

func TestPushoverNotifierExecuteClientErrorNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewPushoverNotifier("token", "user", nil)
	n.apiURL = server.URL

	check, svc, result := testPushoverArgs()
	err := n.Execute(context.Background(), check, svc, result)

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "a 4xx response must not be retried")
}

func TestPushoverNotifierExecuteServerErrorRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewPushoverNotifier("token", "user", nil)
	n.apiURL = server.URL

	check, svc, result := testPushoverArgs()
	err := n.Execute(context.Background(), check, svc, result)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2), "a 5xx response must be retried")
}
