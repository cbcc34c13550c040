package checks

import (
	"context"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/maremma/maremma/internal/merrors"
	"github.com/maremma/maremma/internal/store"
)

// HostChecker probes whether a host is reachable at all, independent
// of any service running on it. A non-nil error means the host is
// considered down: the Scheduler then records a critical "host
// unreachable" result for the service check instead of running it.
type HostChecker interface {
	CheckHost(ctx context.Context, host store.Host) error
}

// HostCheckers maps a Host.Check value to its checker.
type HostCheckers map[string]HostChecker

// NewHostCheckers wires the four host-liveness probes named in
// Host.Check: none, ping, ssh, kube.
func NewHostCheckers() HostCheckers {
	return HostCheckers{
		"none": NoneHostChecker{},
		"ping": PingHostChecker{},
		"ssh":  SSHHostChecker{},
		"kube": KubeHostChecker{},
	}
}

// NoneHostChecker always reports the host reachable; used when
// liveness is assumed rather than probed.
type NoneHostChecker struct{}

func (NoneHostChecker) CheckHost(context.Context, store.Host) error { return nil }

// PingHostChecker sends a single ICMP echo.
type PingHostChecker struct{}

func (PingHostChecker) CheckHost(ctx context.Context, host store.Host) error {
	pinger, err := probing.NewPinger(host.Hostname)
	if err != nil {
		return merrors.ErrDNSFailed
	}
	pinger.Count = 1
	pinger.Size = 8
	pinger.Timeout = 5 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return merrors.ErrConnectionFailed
	}
	return nil
}

// SSHHostChecker considers the host reachable if a TCP connection to
// its SSH port succeeds; it does not attempt to authenticate.
type SSHHostChecker struct{}

func (SSHHostChecker) CheckHost(ctx context.Context, host store.Host) error {
	port := intParam(host.Config, "port", 22)
	addr := net.JoinHostPort(host.Hostname, strconv.Itoa(port))

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return merrors.ErrConnectionFailed
	}
	return conn.Close()
}

// KubeHostChecker dials the Kubernetes API server named by
// Host.Config's api_hostname/api_port and probes /healthz.
type KubeHostChecker struct{}

func (KubeHostChecker) CheckHost(ctx context.Context, host store.Host) error {
	apiHost := stringParam(host.Config, "api_hostname", host.Hostname)
	apiPort := intParam(host.Config, "api_port", 6443)

	client, err := NewKubeClient(DefaultKubeClientConfig(apiHost, apiPort))
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Healthz(ctx)
}
