package checks

import (
	cryptotls "crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"context"

	checktls "github.com/maremma/maremma/internal/checks/tls"
	"github.com/maremma/maremma/internal/resilience"
	"github.com/maremma/maremma/internal/store"
)

// TLSRunner dials the target on port 443 (or extra_config's port) and
// deliberately fails the handshake via checktls.Verifier so the peer's
// certificate state can be recovered from the returned error, then
// classifies it against expiry_critical/expiry_warn day thresholds.
type TLSRunner struct{}

func (TLSRunner) Run(ctx context.Context, target Target) (Result, error) {
	start := now()
	port := intParam(target.ExtraConfig, "port", 443)
	timeout := durationSecondsParam(target.ExtraConfig, "timeout", 10*time.Second)
	criticalDays := intParam(target.ExtraConfig, "expiry_critical", 0)
	warnDays := intParam(target.ExtraConfig, "expiry_warn", 1)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(target.Host.Hostname, strconv.Itoa(port))
	verifier := checktls.Verifier{ServerName: target.Host.Hostname}

	var state checktls.PeerState
	var genuineErr error

	retryPolicy := &resilience.RetryPolicy{
		MaxRetries:    1,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		Multiplier:    2,
		OperationName: "tls_probe",
	}
	dialErr := resilience.WithRetry(dialCtx, retryPolicy, func() error {
		dialer := &net.Dialer{}
		rawConn, err := dialer.DialContext(dialCtx, "tcp", addr)
		if err != nil {
			return err
		}
		defer rawConn.Close()

		conn := cryptotls.Client(rawConn, &cryptotls.Config{
			ServerName:            target.Host.Hostname,
			InsecureSkipVerify:    true, // VerifyPeerCertificate below is the only check performed
			VerifyPeerCertificate: verifier.Verify,
		})
		handshakeErr := conn.Handshake()
		conn.Close()

		parsed, ok := checktls.ParseSentinel(handshakeErr)
		if !ok {
			genuineErr = handshakeErr
			return nil // not retryable: it's not a dial failure, it's a parse mismatch
		}
		state = parsed
		return nil
	})

	if dialErr != nil {
		return Result{
			Status:      store.StatusCritical,
			ResultText:  resilience.Classify(dialErr).Error(),
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}
	if genuineErr != nil {
		reason := "handshake failed"
		if genuineErr != nil {
			reason = genuineErr.Error()
		}
		return Result{
			Status:      store.StatusCritical,
			ResultText:  reason,
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}

	return classifyPeerState(state, target.Host.Hostname, start, criticalDays, warnDays), nil
}

// classifyPeerState implements the six-step classification: name
// mismatch, expired/untrusted intermediate, and end-certificate
// expiry all fold into a single critical/warning/ok result with a
// comma-joined explanation.
func classifyPeerState(state checktls.PeerState, serverName string, start time.Time, criticalDays, warnDays int) Result {
	var reasons []string
	critical := false
	warning := false

	if !state.CertNameMatches {
		reasons = append(reasons, "certificate name does not match "+serverName)
		critical = true
	}
	if state.IntermediateExpired {
		reasons = append(reasons, "intermediate certificate expired")
		critical = true
	}
	if state.IntermediateUntrusted {
		reasons = append(reasons, "intermediate certificate untrusted")
		critical = true
	}

	remaining := time.Until(state.EndCertExpiry)
	remainingDays := int(remaining.Hours() / 24)
	switch {
	case remaining <= 0:
		reasons = append(reasons, "certificate expired")
		critical = true
	case remainingDays <= criticalDays:
		reasons = append(reasons, fmt.Sprintf("certificate expires in %d days", remainingDays))
		critical = true
	case remainingDays <= warnDays:
		reasons = append(reasons, fmt.Sprintf("certificate expires in %d days", remainingDays))
		warning = true
	default:
		reasons = append(reasons, fmt.Sprintf("certificate valid for %d more days", remainingDays))
	}

	status := store.StatusOK
	if critical {
		status = store.StatusCritical
	} else if warning {
		status = store.StatusWarning
	}

	return Result{
		Status:      status,
		ResultText:  strings.Join(reasons, ", "),
		TimeElapsed: time.Since(start),
		Timestamp:   now(),
	}
}
