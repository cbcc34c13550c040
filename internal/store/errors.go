package store

import (
	"fmt"

	"github.com/maremma/maremma/internal/merrors"
)

// wrapNotFound turns a backend's row-not-found condition into the
// appropriate merrors sentinel, keeping the original error as cause.
func wrapNotFound(sentinel error, kind string, id any, cause error) error {
	return fmt.Errorf("%w: %s %v: %v", sentinel, kind, id, cause)
}

// wrapSQL classifies an otherwise-unrecognized driver error as
// merrors.ErrSQL.
func wrapSQL(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", merrors.ErrSQL, op, err)
}
