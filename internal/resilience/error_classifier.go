package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/maremma/maremma/internal/merrors"
)

// Classify maps a raw error from a check runner or database driver onto
// the merrors sentinel taxonomy, wrapping the original error so that
// both errors.Is(err, merrors.ErrX) and the underlying cause survive.
//
// Returns merrors.ErrTimeout, merrors.ErrDNSFailed,
// merrors.ErrConnectionFailed, merrors.ErrIO, or the original error
// unchanged if none of the known categories match.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return joinSentinel(merrors.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return joinSentinel(merrors.ErrTimeout, err)
		}
		return joinSentinel(merrors.ErrDNSFailed, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return joinSentinel(merrors.ErrTimeout, err)
		}
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return joinSentinel(merrors.ErrConnectionFailed, err)
		}
		return joinSentinel(merrors.ErrIO, err)
	}

	if isTimeoutError(err) {
		return joinSentinel(merrors.ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "dns"):
		return joinSentinel(merrors.ErrDNSFailed, err)
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network is unreachable"):
		return joinSentinel(merrors.ErrConnectionFailed, err)
	}

	return err
}

// joinSentinel wraps cause so errors.Is reports true for both sentinel
// and cause, and Error() still shows the original message.
func joinSentinel(sentinel, cause error) error {
	return &sentinelError{sentinel: sentinel, cause: cause}
}

type sentinelError struct {
	sentinel error
	cause    error
}

func (e *sentinelError) Error() string { return e.cause.Error() }

func (e *sentinelError) Unwrap() []error { return []error{e.sentinel, e.cause} }
