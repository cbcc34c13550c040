// Package checks implements the five stateless, deadline-cancellable
// check runners (cli, ssh, ping, http, tls) that the Scheduler
// dispatches against a (host, service) pair, plus the kube HostCheck
// used to probe host reachability independent of any service.
package checks

import (
	"context"
	"time"

	"github.com/maremma/maremma/internal/store"
)

// Target bundles the host and service-level parameters a runner needs;
// it carries no behavior of its own and is never mutated by a runner.
type Target struct {
	Host        store.Host
	ExtraConfig map[string]any
}

// Result is a completed check's outcome, ready for
// store.Store.SetCheckResult.
type Result struct {
	Status       store.CheckStatus
	ResultText   string
	TimeElapsed  time.Duration
	Timestamp    time.Time
}

// Runner executes one check against a target, respecting ctx's
// deadline, and never panics on a malformed or unreachable target —
// failures are reported as a critical/error Result, not a returned
// error. A returned error indicates a programming error rather than a
// check outcome; a missing or empty parameter such as CLIRunner's
// command_line is reported as an error-status Result.
type Runner interface {
	Run(ctx context.Context, target Target) (Result, error)
}

// Registry maps a service type name to its Runner.
type Registry map[string]Runner

// NewRegistry wires the five built-in runners.
func NewRegistry() Registry {
	return Registry{
		"cli":  CLIRunner{},
		"ssh":  SSHRunner{},
		"ping": PingRunner{},
		"http": HTTPRunner{},
		"tls":  TLSRunner{},
	}
}

func now() time.Time { return time.Now().UTC() }

func stringParam(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intParam(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func durationSecondsParam(cfg map[string]any, key string, def time.Duration) time.Duration {
	switch v := cfg[key].(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	default:
		return def
	}
}
