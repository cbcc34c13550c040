package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "database_file": ":memory:",
  "listen_address": "0.0.0.0",
  "listen_port": 8888,
  "frontend_url": "https://maremma.example.com",
  "max_concurrent_checks": 4,
  "max_history_entries_per_check": 100,
  "host_groups": {"web": {}},
  "hosts": {"web-01": {"hostname": "web-01.internal", "check": "ping", "groups": ["web"]}},
  "services": {"http-check": {"type": "http", "cron_schedule": "*/30 * * * * *", "groups": ["web"]}}
}`

func TestLoadFromJSON_Valid(t *testing.T) {
	cfg, err := LoadFromJSON([]byte(validConfigJSON))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DatabaseFile)
	assert.Contains(t, cfg.Hosts, "web-01")
	assert.Contains(t, cfg.Services, "http-check")
	assert.False(t, cfg.HasLocalServices())
}

func TestLoadFromJSON_RejectsNonHTTPSFrontendURL(t *testing.T) {
	_, err := LoadFromJSON([]byte(`{
		"database_file": ":memory:",
		"frontend_url": "http://insecure.example.com",
		"max_concurrent_checks": 1,
		"max_history_entries_per_check": 10
	}`))
	require.Error(t, err)
}

func TestLoadFromJSON_RejectsDanglingGroupReference(t *testing.T) {
	_, err := LoadFromJSON([]byte(`{
		"database_file": ":memory:",
		"max_concurrent_checks": 1,
		"max_history_entries_per_check": 10,
		"services": {"ghost": {"type": "ping", "cron_schedule": "* * * * * *", "groups": ["nonexistent"]}}
	}`))
	require.Error(t, err)
}

func TestLoadFromJSON_RejectsOIDCEnabledWithoutConfig(t *testing.T) {
	_, err := LoadFromJSON([]byte(`{
		"database_file": ":memory:",
		"max_concurrent_checks": 1,
		"max_history_entries_per_check": 10,
		"oidc_enabled": true
	}`))
	require.Error(t, err)
}

func TestLoadFromJSON_SynthesizesLocalHost(t *testing.T) {
	cfg, err := LoadFromJSON([]byte(`{
		"database_file": ":memory:",
		"max_concurrent_checks": 1,
		"max_history_entries_per_check": 10,
		"local_services": {"disk-check": {"type": "cli", "cron_schedule": "0 * * * * *"}}
	}`))
	require.NoError(t, err)
	assert.True(t, cfg.HasLocalServices())
	host, ok := cfg.Hosts[LocalHostName]
	require.True(t, ok)
	assert.Equal(t, LocalHostID, host.ID)
}

func TestDeterministicID_StableAcrossReloads(t *testing.T) {
	cfg1, err := LoadFromJSON([]byte(validConfigJSON))
	require.NoError(t, err)
	cfg2, err := LoadFromJSON([]byte(validConfigJSON))
	require.NoError(t, err)
	assert.Equal(t, cfg1.Hosts["web-01"].ID, cfg2.Hosts["web-01"].ID)
}

func TestSnapshot_ReloadFailureKeepsOldConfig(t *testing.T) {
	cfg, err := LoadFromJSON([]byte(validConfigJSON))
	require.NoError(t, err)
	snap := NewSnapshot(cfg)

	err = snap.ReloadFromJSON([]byte(`{"database_file": ":memory:", "frontend_url": "http://bad"}`))
	require.Error(t, err)
	assert.Equal(t, cfg.DatabaseFile, snap.Current().DatabaseFile)
	assert.Equal(t, cfg.FrontendURL, snap.Current().FrontendURL)
}
