package shepherd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maremma/maremma/internal/store"
)

const (
	stuckCheckWindow         = 5 * time.Minute
	sessionExpiryWindow      = 24 * time.Hour
	historyTrimTopN          = 10
	defaultMaxHistoryEntries = 500
)

// ServiceCheckCleanTask reclaims work abandoned by crashed workers: any
// row stuck in "checking" past stuckCheckWindow reverts to "pending".
type ServiceCheckCleanTask struct {
	Store store.Store
}

func (ServiceCheckCleanTask) Name() string             { return "service_check_clean" }
func (ServiceCheckCleanTask) Schedule() cron.Schedule   { return mustParseSchedule("* * * * *") }
func (t ServiceCheckCleanTask) Run(ctx context.Context) error {
	_, err := t.Store.ReapStuckChecks(ctx, time.Now().Add(-stuckCheckWindow))
	return err
}

// SessionCleanTask deletes web-collaborator sessions long past expiry.
type SessionCleanTask struct {
	Store store.Store
}

func (SessionCleanTask) Name() string           { return "session_clean" }
func (SessionCleanTask) Schedule() cron.Schedule { return mustParseSchedule("49 * * * *") }
func (t SessionCleanTask) Run(ctx context.Context) error {
	_, err := t.Store.ReapExpiredSessions(ctx, time.Now().Add(-sessionExpiryWindow))
	return err
}

// ServiceCheckHistoryCleanerTask trims check history down to
// MaxHistoryEntries rows per check, keeping only the most recent rows.
// The SQLite and PostgreSQL stores trim at most the ten checks with the
// most rows on each run; the memory store trims every check.
type ServiceCheckHistoryCleanerTask struct {
	Store              store.Store
	MaxHistoryEntries  int
}

func (ServiceCheckHistoryCleanerTask) Name() string           { return "service_check_history_cleaner" }
func (ServiceCheckHistoryCleanerTask) Schedule() cron.Schedule { return mustParseSchedule("27 * * * *") }
func (t ServiceCheckHistoryCleanerTask) Run(ctx context.Context) error {
	maxEntries := t.MaxHistoryEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxHistoryEntries
	}
	_, err := t.Store.TrimHistory(ctx, maxEntries)
	return err
}

// CertReloaderTask stats the web collaborator's TLS cert/key files and
// signals ReloadCh when either mtime changes, so the collaborator can
// rotate certificates without a restart.
type CertReloaderTask struct {
	CertFile, KeyFile string
	ReloadCh          chan<- struct{}
	Logger            *slog.Logger

	lastCertMod time.Time
	lastKeyMod  time.Time
}

func (*CertReloaderTask) Name() string           { return "cert_reloader" }
func (*CertReloaderTask) Schedule() cron.Schedule { return mustParseSchedule("* * * * *") }

func (t *CertReloaderTask) Run(ctx context.Context) error {
	if t.CertFile == "" || t.KeyFile == "" {
		return nil
	}

	certInfo, err := os.Stat(t.CertFile)
	if err != nil {
		return err
	}
	keyInfo, err := os.Stat(t.KeyFile)
	if err != nil {
		return err
	}

	changed := !certInfo.ModTime().Equal(t.lastCertMod) || !keyInfo.ModTime().Equal(t.lastKeyMod)
	t.lastCertMod = certInfo.ModTime()
	t.lastKeyMod = keyInfo.ModTime()

	if !changed {
		return nil
	}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	select {
	case t.ReloadCh <- struct{}{}:
		logger.Info("TLS material changed, signaled reload", "cert_file", t.CertFile)
	case <-ctx.Done():
		return ctx.Err()
	default:
		logger.Warn("TLS reload signal dropped, channel full")
	}
	return nil
}
