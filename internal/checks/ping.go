package checks

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/maremma/maremma/internal/merrors"
	"github.com/maremma/maremma/internal/store"
)

// PingRunner resolves the host's hostname (failure -> critical with
// merrors.ErrDNSFailed) and sends a single ICMP echo with an 8-byte
// payload; a reply reports elapsed milliseconds, a non-reply is
// critical.
type PingRunner struct{}

func (PingRunner) Run(ctx context.Context, target Target) (Result, error) {
	start := now()
	timeout := durationSecondsParam(target.ExtraConfig, "timeout", 5*time.Second)

	pinger, err := probing.NewPinger(target.Host.Hostname)
	if err != nil {
		return Result{
			Status:      store.StatusCritical,
			ResultText:  merrors.ErrDNSFailed.Error() + ": " + err.Error(),
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}
	pinger.Count = 1
	pinger.Size = 8
	pinger.Timeout = timeout
	pinger.SetPrivileged(false) // unprivileged datagram socket; falls back automatically where supported

	if err := pinger.RunWithContext(ctx); err != nil {
		return Result{
			Status:      store.StatusCritical,
			ResultText:  "ping failed: " + err.Error(),
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return Result{
			Status:      store.StatusCritical,
			ResultText:  "no reply",
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}

	return Result{
		Status:      store.StatusOK,
		ResultText:  stats.AvgRtt.String(),
		TimeElapsed: stats.AvgRtt,
		Timestamp:   now(),
	}, nil
}
