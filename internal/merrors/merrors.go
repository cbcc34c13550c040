// Package merrors defines the sentinel error taxonomy shared across
// maremma's packages. Callers compare against these with errors.Is,
// and wrap them with fmt.Errorf("...: %w", ...) to attach context.
package merrors

import "errors"

var (
	// ErrConfigFileNotFound is returned when the configured config file
	// path does not exist on disk.
	ErrConfigFileNotFound = errors.New("config file not found")

	// ErrConfiguration covers semantic configuration problems caught
	// after parsing: dangling group references, a non-https
	// frontend_url, and similar cross-field invariant violations.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrConfigParse is returned when the config file contents cannot
	// be unmarshalled into a Configuration.
	ErrConfigParse = errors.New("failed to parse configuration")

	// ErrDNSFailed is returned when a check's host name could not be
	// resolved.
	ErrDNSFailed = errors.New("dns resolution failed")

	// ErrConnectionFailed is returned when a check could not establish
	// a connection to its target (refused, reset, unreachable).
	ErrConnectionFailed = errors.New("connection failed")

	// ErrTimeout is returned when a check or database operation
	// exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrIO is returned for local I/O failures not otherwise
	// classified (file read/write, pipe errors).
	ErrIO = errors.New("io error")

	// ErrHostNotFound is returned when a referenced host id has no
	// matching row.
	ErrHostNotFound = errors.New("host not found")

	// ErrServiceNotFound is returned when a referenced service id has
	// no matching row.
	ErrServiceNotFound = errors.New("service not found")

	// ErrServiceCheckNotFound is returned when a referenced service
	// check id has no matching row.
	ErrServiceCheckNotFound = errors.New("service check not found")

	// ErrSQL wraps unclassified database driver errors.
	ErrSQL = errors.New("database error")

	// ErrDateInTheFuture names a service check result or history entry
	// whose timestamp is later than the current time. No code path in
	// this module returns it; the stores accept any timestamp.
	ErrDateInTheFuture = errors.New("date is in the future")
)
