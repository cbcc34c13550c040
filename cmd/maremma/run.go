package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maremma/maremma/internal/broker"
	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/config"
	logger "github.com/maremma/maremma/internal/logging"
	"github.com/maremma/maremma/internal/notify"
	"github.com/maremma/maremma/internal/scheduler"
	"github.com/maremma/maremma/internal/shepherd"
	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/driver"
	"github.com/maremma/maremma/internal/web"
)

// defaultJitterSeconds bounds the random delay the Broker adds to
// every computed next_check. Configuration has no dedicated field for
// it (spec.md's jitter window is a per-service extra_config parameter
// consumed by individual runners, not a global scheduler knob), so the
// Scheduler is built with this constant — see DESIGN.md.
const defaultJitterSeconds = 30

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the scheduler and web collaborator; run until terminated",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	level := "info"
	if debug {
		level = "debug"
	}
	log := logger.NewLogger(logger.Config{Level: level, Format: "json"})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := driver.Open(ctx, cfg.DatabaseFile)
	if err != nil {
		log.Error("failed to open store", "error", err)
		return err
	}
	defer s.Close()

	if err := reconcile(ctx, s, cfg); err != nil {
		log.Error("failed to reconcile configuration into the store", "error", err)
		return err
	}

	notifiers := buildNotifiers(cfg)
	b := broker.New(s, notifyFunc(log, notifiers), log)
	go b.Run(ctx)

	registry := checks.NewRegistry()
	hostCheckers := checks.NewHostCheckers()
	sched := scheduler.New(b, registry, hostCheckers, cfg.MaxConcurrentChecks, defaultJitterSeconds, log)
	go sched.Run(ctx)

	reloadCh := make(chan struct{}, 1)
	shep := shepherd.New(log,
		shepherd.ServiceCheckCleanTask{Store: s},
		shepherd.SessionCleanTask{Store: s},
		shepherd.ServiceCheckHistoryCleanerTask{Store: s, MaxHistoryEntries: cfg.MaxHistoryEntriesPerCheck},
		&shepherd.CertReloaderTask{CertFile: cfg.CertFile, KeyFile: cfg.CertKey, ReloadCh: reloadCh, Logger: log},
	)
	go shep.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	webServer := web.New(addr, s, b, log, cfg.SessionCacheRedisAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- webServer.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error("web collaborator exited unexpectedly", "error", err)
			cancel()
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		log.Error("broker shutdown failed", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

// notifyFunc adapts notify.Dispatch into the Broker's synchronous
// NotifyFunc callback; the Broker invokes it outside the single-writer
// loop so a slow notifier never stalls command processing.
func notifyFunc(log *slog.Logger, notifiers []notify.Notifier) broker.NotifyFunc {
	return func(check store.ServiceCheck, service store.Service, result checks.Result) {
		notify.Dispatch(context.Background(), log, notifiers, check, service, result)
	}
}

func buildNotifiers(cfg *config.Configuration) []notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Pushover == nil || cfg.Pushover.Token == "" {
		return notifiers
	}
	armStates := make(map[store.CheckStatus]bool, len(cfg.Pushover.States))
	for _, st := range cfg.Pushover.States {
		armStates[store.CheckStatus(st)] = true
	}
	notifiers = append(notifiers, notify.NewPushoverNotifier(cfg.Pushover.Token, cfg.Pushover.UserKey, armStates))
	return notifiers
}
