// Package broker implements the Check Broker: a single-writer actor
// that serializes every mutation to ServiceCheck/ServiceCheckHistory
// rows behind a command queue, so the Scheduler and the web
// collaborator never touch the store directly for writes.
package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/google/uuid"
	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/metrics"
	"github.com/maremma/maremma/internal/store"
)

// RunnableCheck bundles everything a worker needs to execute a check:
// the host, and the check target built from the service's extra_config
// overlaid with host-level overrides.
type RunnableCheck struct {
	Host    store.Host
	Service store.Service
	Target  checks.Target
}

// NotifyFunc is invoked, outside the single-writer loop, after a
// result is committed — the Broker's caller wires this to the notify
// package's dispatch so a slow notifier never stalls command
// processing.
type NotifyFunc func(check store.ServiceCheck, service store.Service, result checks.Result)

// command is the sealed set of messages the broker loop accepts.
type command interface {
	apply(ctx context.Context, b *Broker)
}

// Broker is the single-writer actor. Run must be started in its own
// goroutine before any command method is called; Shutdown stops it.
type Broker struct {
	store   store.Store
	cronP   cron.Parser
	notify  NotifyFunc
	logger  *slog.Logger
	cmdCh   chan command
	cache   *lru.Cache[string, map[string]any]
}

// New constructs a Broker. notify may be nil.
func New(s store.Store, notify NotifyFunc, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, map[string]any](512)
	if err != nil {
		panic(fmt.Sprintf("broker: lru cache: %v", err))
	}
	return &Broker{
		store:  s,
		cronP:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		notify: notify,
		logger: logger,
		cmdCh:  make(chan command, 64),
		cache:  cache,
	}
}

// Run drives the command loop until ctx is cancelled or Shutdown is
// called. It must run in exactly one goroutine.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.cmdCh:
			cmd.apply(ctx, b)
		}
	}
}

func (b *Broker) enqueue(ctx context.Context, cmd command) error {
	metrics.BrokerQueueDepth.Set(float64(len(b.cmdCh)))
	select {
	case b.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func observe(name string, start time.Time) {
	metrics.BrokerCommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// --- NextServiceCheck ---

type nextServiceCheckReply struct {
	check   store.ServiceCheck
	service store.Service
	ok      bool
	err     error
}

type nextServiceCheckCmd struct {
	now   time.Time
	reply chan nextServiceCheckReply
}

func (c *nextServiceCheckCmd) apply(ctx context.Context, b *Broker) {
	start := time.Now()
	defer observe("next_service_check", start)

	sc, err := b.store.NextServiceCheck(ctx, c.now)
	if err != nil {
		c.reply <- nextServiceCheckReply{err: err}
		return
	}
	if sc.ID == uuid.Nil {
		c.reply <- nextServiceCheckReply{ok: false}
		return
	}
	if err := b.store.ClaimCheck(ctx, sc.ID, c.now); err != nil {
		c.reply <- nextServiceCheckReply{err: err}
		return
	}
	svc, err := b.store.GetService(ctx, sc.ServiceID)
	if err != nil {
		// Couldn't resolve the service; revert the claim rather than
		// hand the scheduler a check it cannot run.
		_ = b.store.SetStatus(ctx, sc.ID, store.StatusPending)
		c.reply <- nextServiceCheckReply{err: err}
		return
	}
	c.reply <- nextServiceCheckReply{check: sc, service: svc, ok: true}
}

// NextServiceCheck asks the Broker for the next due check and
// atomically claims it (pending/urgent -> checking). If ctx is
// cancelled before the reply arrives, a background goroutine watches
// for the (buffered) reply and reverts the claim to pending so a
// caller that gave up never leaves a row stuck in checking.
func (b *Broker) NextServiceCheck(ctx context.Context, now time.Time) (store.ServiceCheck, store.Service, bool, error) {
	cmd := &nextServiceCheckCmd{now: now, reply: make(chan nextServiceCheckReply, 1)}
	if err := b.enqueue(ctx, cmd); err != nil {
		return store.ServiceCheck{}, store.Service{}, false, err
	}

	select {
	case r := <-cmd.reply:
		return r.check, r.service, r.ok, r.err
	case <-ctx.Done():
		go b.revertDroppedClaim(cmd.reply)
		return store.ServiceCheck{}, store.Service{}, false, ctx.Err()
	}
}

func (b *Broker) revertDroppedClaim(reply chan nextServiceCheckReply) {
	r := <-reply
	if r.ok && r.err == nil {
		revertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.store.SetStatus(revertCtx, r.check.ID, store.StatusPending); err != nil {
			b.logger.Error("failed to revert dropped claim", "service_check_id", r.check.ID, "error", err)
		}
	}
}

// --- SetStatus ---

type setStatusCmd struct {
	id     uuid.UUID
	status store.CheckStatus
	reply  chan error
}

func (c *setStatusCmd) apply(ctx context.Context, b *Broker) {
	start := time.Now()
	defer observe("set_status", start)
	c.reply <- b.store.SetStatus(ctx, c.id, c.status)
}

// SetStatus is used by the web collaborator to mark a check
// urgent/disabled/enabled.
func (b *Broker) SetStatus(ctx context.Context, id uuid.UUID, status store.CheckStatus) error {
	cmd := &setStatusCmd{id: id, status: status, reply: make(chan error, 1)}
	if err := b.enqueue(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- SetCheckResult ---

type setCheckResultCmd struct {
	check         store.ServiceCheck
	service       store.Service
	lastCheck     time.Time
	result        checks.Result
	jitterSeconds int
	reply         chan error
}

func (c *setCheckResultCmd) apply(ctx context.Context, b *Broker) {
	start := time.Now()
	defer observe("set_check_result", start)

	status := store.CheckStatus(c.result.Status)
	if status == "" {
		status = store.StatusUnknown
	}

	nextCheck := c.lastCheck
	if schedule, err := b.cronP.Parse(c.service.CronSchedule); err == nil {
		nextCheck = schedule.Next(time.Now())
	}
	if c.jitterSeconds > 0 {
		nextCheck = nextCheck.Add(time.Duration(rand.Intn(c.jitterSeconds)) * time.Second)
	}

	// SetCheckResult inserts the service_check_history row itself; do not
	// append it again here.
	err := b.store.SetCheckResult(ctx, c.check.ID, status, c.result.ResultText, c.result.TimeElapsed, c.lastCheck, nextCheck)
	if err != nil {
		c.reply <- err
		return
	}

	c.reply <- nil

	if b.notify != nil {
		updated := c.check
		updated.Status = status
		updated.LastCheck = c.lastCheck
		updated.NextCheck = nextCheck
		go b.notify(updated, c.service, c.result)
	}
}

// SetCheckResult writes a history row, updates the check's status and
// schedule, and (asynchronously, after the write is durable) invokes
// the configured notifier.
func (b *Broker) SetCheckResult(ctx context.Context, check store.ServiceCheck, service store.Service, lastCheck time.Time, result checks.Result, jitterSeconds int) error {
	cmd := &setCheckResultCmd{
		check:         check,
		service:       service,
		lastCheck:     lastCheck,
		result:        result,
		jitterSeconds: jitterSeconds,
		reply:         make(chan error, 1),
	}
	if err := b.enqueue(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- GetRunnableCheck ---

type getRunnableCheckCmd struct {
	check   store.ServiceCheck
	service store.Service
	reply   chan getRunnableCheckReply
}

type getRunnableCheckReply struct {
	runnable RunnableCheck
	err      error
}

func (c *getRunnableCheckCmd) apply(ctx context.Context, b *Broker) {
	start := time.Now()
	defer observe("get_runnable_check", start)

	host, err := b.store.GetHost(ctx, c.check.HostID)
	if err != nil {
		c.reply <- getRunnableCheckReply{err: err}
		return
	}

	key := overlayCacheKey(c.check.ID, host.Config)
	merged, ok := b.cache.Get(key)
	if ok {
		metrics.BrokerCacheHits.WithLabelValues("hit").Inc()
	} else {
		metrics.BrokerCacheHits.WithLabelValues("miss").Inc()
		merged = mergeExtraConfig(c.service.ExtraConfig, host.Config)
		b.cache.Add(key, merged)
	}

	c.reply <- getRunnableCheckReply{runnable: RunnableCheck{
		Host:    host,
		Service: c.service,
		Target:  checks.Target{Host: host, ExtraConfig: merged},
	}}
}

// GetRunnableCheck materializes the host row and the merged
// extra_config (service config overlaid with host-level overrides),
// caching the merge by (service_check_id, host config hash).
func (b *Broker) GetRunnableCheck(ctx context.Context, check store.ServiceCheck, service store.Service) (RunnableCheck, error) {
	cmd := &getRunnableCheckCmd{check: check, service: service, reply: make(chan getRunnableCheckReply, 1)}
	if err := b.enqueue(ctx, cmd); err != nil {
		return RunnableCheck{}, err
	}
	select {
	case r := <-cmd.reply:
		return r.runnable, r.err
	case <-ctx.Done():
		return RunnableCheck{}, ctx.Err()
	}
}

// mergeExtraConfig overlays host-level overrides onto the service's
// extra_config; host keys win on conflict.
func mergeExtraConfig(serviceConfig, hostConfig map[string]any) map[string]any {
	merged := make(map[string]any, len(serviceConfig)+len(hostConfig))
	for k, v := range serviceConfig {
		merged[k] = v
	}
	for k, v := range hostConfig {
		merged[k] = v
	}
	return merged
}

func overlayCacheKey(serviceCheckID uuid.UUID, hostConfig map[string]any) string {
	payload, _ := json.Marshal(hostConfig)
	sum := sha256.Sum256(payload)
	return serviceCheckID.String() + ":" + hex.EncodeToString(sum[:8])
}

// --- Shutdown ---

type shutdownCmd struct {
	reply chan struct{}
}

func (c *shutdownCmd) apply(ctx context.Context, b *Broker) {
	close(c.reply)
}

// Shutdown drains the command queue and returns once the broker has
// processed every command enqueued before the call.
func (b *Broker) Shutdown(ctx context.Context) error {
	cmd := &shutdownCmd{reply: make(chan struct{})}
	if err := b.enqueue(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-cmd.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
