// Package shepherd implements the janitor loop: a fixed set of
// cron-gated tasks that un-stick abandoned runs, prune history, expire
// sessions, and watch TLS material for hot reload. It runs
// independently of the Broker and Scheduler, talking to the store
// directly.
package shepherd

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maremma/maremma/internal/metrics"
)

const tickInterval = time.Minute

// Task is one janitor job, gated by its own cron schedule.
type Task interface {
	Name() string
	Schedule() cron.Schedule
	Run(ctx context.Context) error
}

// Shepherd drives every registered Task once per tick, firing each
// whose schedule says it's due since its last run.
type Shepherd struct {
	tasks    []Task
	lastRun  map[string]time.Time
	logger   *slog.Logger
}

// New builds a Shepherd from a fixed task list. Every task's lastRun
// starts at the zero time so each fires on the Shepherd's first tick.
func New(logger *slog.Logger, tasks ...Task) *Shepherd {
	if logger == nil {
		logger = slog.Default()
	}
	lastRun := make(map[string]time.Time, len(tasks))
	for _, t := range tasks {
		lastRun[t.Name()] = time.Time{}
	}
	return &Shepherd{tasks: tasks, lastRun: lastRun, logger: logger}
}

// Run loops once per minute until ctx is cancelled, running every due
// task sequentially. Elapsed time within a tick offsets the next
// sleep so ticks target a 60-second cadence rather than compounding
// drift from task runtime.
func (s *Shepherd) Run(ctx context.Context) {
	for {
		tickStart := time.Now()
		s.tick(ctx)
		elapsed := time.Since(tickStart)
		sleep := tickInterval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Shepherd) tick(ctx context.Context) {
	now := time.Now()
	for _, t := range s.tasks {
		last := s.lastRun[t.Name()]
		if t.Schedule().Next(last).After(now) {
			continue
		}

		if err := t.Run(ctx); err != nil {
			s.logger.Error("shepherd task failed", "task", t.Name(), "error", err)
			metrics.ShepherdTaskRuns.WithLabelValues(t.Name(), "error").Inc()
		} else {
			metrics.ShepherdTaskRuns.WithLabelValues(t.Name(), "ok").Inc()
		}
		s.lastRun[t.Name()] = now
		metrics.ShepherdLastRunTimestamp.WithLabelValues(t.Name()).Set(float64(now.Unix()))
	}
}

// mustParseSchedule parses a standard 5-field cron expression,
// panicking on malformed input — every schedule here is a compile-time
// constant, never user data.
func mustParseSchedule(expr string) cron.Schedule {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		panic("shepherd: invalid cron expression " + expr + ": " + err.Error())
	}
	return schedule
}
