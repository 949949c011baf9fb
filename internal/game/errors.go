package game

import (
	"context"
	"errors"
)

// Store contract errors.  Implementations of Tx and Views return these.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Operation errors.  Handlers map them onto transport status codes.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotEntitled    = errors.New("not entitled")
	ErrRoundNotFound  = errors.New("round not found")
	ErrRoundClosed    = errors.New("round closed")
	ErrAlreadySettled = errors.New("round already settled")
	ErrNotSettled     = errors.New("round not settled")
	// ErrTransient marks store failures that are safe to retry: timeouts,
	// lock wait timeouts and deadlocks.  A transient failure does not mean
	// the operation had no effect.
	ErrTransient = errors.New("transient store failure")
)

// transient wraps context deadline failures so callers can test for
// ErrTransient alone.
func transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTransient, err)
	}
	return err
}

// errRollback aborts a transaction without reporting a failure.
var errRollback = errors.New("rollback")
