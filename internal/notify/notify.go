// Package notify implements the Notifier contract invoked after every
// completed check: each registered notifier whose armed set contains
// the new status gets exactly one message.
package notify

import (
	"context"
	"log/slog"

	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/metrics"
	"github.com/maremma/maremma/internal/store"
)

// Notifier sends one message per armed status transition.
type Notifier interface {
	// Execute sends a notification for the completed check. It must
	// not block the caller indefinitely; implementations should honor
	// ctx's deadline.
	Execute(ctx context.Context, check store.ServiceCheck, service store.Service, result checks.Result) error

	// RunStates returns the set of statuses that arm this notifier.
	RunStates() map[store.CheckStatus]bool
}

// Dispatch invokes every notifier whose armed set contains the
// result's status, logging failures rather than propagating them —
// a failed notification must never affect the check's persisted
// state.
func Dispatch(ctx context.Context, logger *slog.Logger, notifiers []Notifier, check store.ServiceCheck, service store.Service, result checks.Result) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, n := range notifiers {
		if !n.RunStates()[result.Status] {
			continue
		}
		name := notifierName(n)
		if err := n.Execute(ctx, check, service, result); err != nil {
			logger.Error("notifier failed", "notifier", name, "service_check_id", check.ID, "error", err)
			metrics.NotifyAttempts.WithLabelValues(name, "error").Inc()
			continue
		}
		metrics.NotifyAttempts.WithLabelValues(name, "ok").Inc()
	}
}

func notifierName(n Notifier) string {
	if named, ok := n.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}
