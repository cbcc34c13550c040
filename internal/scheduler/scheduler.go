// Package scheduler drives the long-running loop that asks the Broker
// for due checks and dispatches them to a bounded worker pool.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/maremma/maremma/internal/broker"
	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/metrics"
	"github.com/maremma/maremma/internal/store"
)

const (
	defaultPollInterval = time.Second
	defaultCheckTimeout = 30 * time.Second
)

// Scheduler polls the Broker for due checks and runs them on a bounded
// pool of worker goroutines.
type Scheduler struct {
	broker        *broker.Broker
	registry      checks.Registry
	hostCheckers  checks.HostCheckers
	maxConcurrent int
	jitterSeconds int
	pollInterval  time.Duration
	logger        *slog.Logger

	sem chan struct{}
}

// New builds a Scheduler. maxConcurrent sizes the worker semaphore;
// jitterSeconds bounds the random delay added to every computed
// next_check.
func New(b *broker.Broker, registry checks.Registry, hostCheckers checks.HostCheckers, maxConcurrent, jitterSeconds int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		broker:        b,
		registry:      registry,
		hostCheckers:  hostCheckers,
		maxConcurrent: maxConcurrent,
		jitterSeconds: jitterSeconds,
		pollInterval:  defaultPollInterval,
		logger:        logger,
		sem:           make(chan struct{}, maxConcurrent),
	}
}

// Run blocks until ctx is cancelled. Outstanding workers are not
// force-killed on cancellation; the Shepherd reaps any check left
// stuck in "checking".
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sc, svc, ok, err := s.broker.NextServiceCheck(ctx, time.Now())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("next service check failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		metrics.SchedulerWorkerPoolInUse.Set(float64(len(s.sem)))

		go func() {
			defer func() {
				<-s.sem
				metrics.SchedulerWorkerPoolInUse.Set(float64(len(s.sem)))
			}()
			s.runCheck(ctx, sc, svc)
		}()
	}
}

func (s *Scheduler) runCheck(ctx context.Context, sc store.ServiceCheck, svc store.Service) {
	start := time.Now()
	metrics.SchedulerChecksDispatched.WithLabelValues(svc.Type).Inc()

	runnable, err := s.broker.GetRunnableCheck(ctx, sc, svc)
	if err != nil {
		s.logger.Error("get runnable check failed", "service_check_id", sc.ID, "error", err)
		s.commit(ctx, sc, svc, checks.Result{Status: store.StatusError, ResultText: err.Error(), Timestamp: start})
		return
	}

	if checker, ok := s.hostCheckers[runnable.Host.Check]; ok {
		if hostErr := checker.CheckHost(ctx, runnable.Host); hostErr != nil {
			s.commit(ctx, sc, svc, checks.Result{
				Status:      store.StatusCritical,
				ResultText:  "host unreachable: " + hostErr.Error(),
				TimeElapsed: time.Since(start),
				Timestamp:   time.Now().UTC(),
			})
			return
		}
	}

	runner, ok := s.registry[svc.Type]
	if !ok {
		s.commit(ctx, sc, svc, checks.Result{Status: store.StatusError, ResultText: "unknown service type " + svc.Type, Timestamp: start})
		return
	}

	timeout := checkTimeout(runnable.Target.ExtraConfig)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := runner.Run(runCtx, runnable.Target)
	if err != nil {
		s.logger.Error("runner returned an error (programming defect, not a check failure)", "service_check_id", sc.ID, "type", svc.Type, "error", err)
		result = checks.Result{Status: store.StatusError, ResultText: err.Error(), TimeElapsed: time.Since(start), Timestamp: time.Now().UTC()}
	}

	metrics.CheckDuration.WithLabelValues(svc.Type, string(result.Status)).Observe(result.TimeElapsed.Seconds())
	s.commit(ctx, sc, svc, result)
}

func (s *Scheduler) commit(ctx context.Context, sc store.ServiceCheck, svc store.Service, result checks.Result) {
	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.broker.SetCheckResult(commitCtx, sc, svc, time.Now().UTC(), result, s.jitterSeconds); err != nil {
		s.logger.Error("set check result failed", "service_check_id", sc.ID, "error", err)
	}
}

func checkTimeout(extraConfig map[string]any) time.Duration {
	switch v := extraConfig["timeout"].(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	default:
		return defaultCheckTimeout
	}
}
