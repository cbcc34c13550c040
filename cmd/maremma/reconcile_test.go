package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/config"
	"github.com/maremma/maremma/internal/store/memory"
)

const testConfigJSON = `{
  "database_file": ":memory:",
  "max_concurrent_checks": 4,
  "max_history_entries_per_check": 100,
  "host_groups": {"web": {}},
  "hosts": {"web-01": {"hostname": "web-01.internal", "check": "ping", "groups": ["web"]}},
  "services": {"http-check": {"type": "http", "cron_schedule": "*/30 * * * * *", "groups": ["web"]}},
  "local_services": {"disk-space": {"type": "cli", "cron_schedule": "0 * * * * *", "extra_config": {"command_line": "df -h"}}}
}`

func TestReconcilePopulatesStoreAndServiceChecks(t *testing.T) {
	cfg, err := config.LoadFromJSON([]byte(testConfigJSON))
	require.NoError(t, err)

	s := memory.New()
	require.NoError(t, reconcile(context.Background(), s, cfg))

	hosts, err := s.ListHosts(context.Background())
	require.NoError(t, err)
	assert.Len(t, hosts, 2) // web-01 plus the synthetic local host

	services, err := s.ListServices(context.Background())
	require.NoError(t, err)
	assert.Len(t, services, 2)

	checks, err := s.ListServiceChecks(context.Background())
	require.NoError(t, err)
	assert.Len(t, checks, 2) // web-01/http-check, local/disk-space
}

func TestReconcileIsIdempotent(t *testing.T) {
	cfg, err := config.LoadFromJSON([]byte(testConfigJSON))
	require.NoError(t, err)

	s := memory.New()
	require.NoError(t, reconcile(context.Background(), s, cfg))
	require.NoError(t, reconcile(context.Background(), s, cfg))

	checks, err := s.ListServiceChecks(context.Background())
	require.NoError(t, err)
	assert.Len(t, checks, 2)
}
