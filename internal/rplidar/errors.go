package rplidar

import (
	"context"
	"errors"
)

// transientError marks failures that spoil the current sweep without ending
// the session. The session owner detects the Transient method through
// errors.As, in the manner of net.Error, so it never has to import this
// package's sentinels. Construction goes through classified, keeping
// Classify the single recovery-policy decision.
type transientError struct{ err error }

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Transient() bool { return true }
func (e *transientError) Unwrap() error   { return e.err }

var (
	// ErrBadDescriptor indicates the device answered with a malformed
	// response descriptor.
	ErrBadDescriptor = errors.New("rplidar: bad response descriptor")

	// ErrDesync indicates the scan byte stream lost node alignment.
	ErrDesync = errors.New("rplidar: scan stream out of sync")

	// ErrHealth indicates the device reported an error health status.
	ErrHealth = errors.New("rplidar: device health check failed")

	// ErrClosed indicates an operation on a closed device.
	ErrClosed = errors.New("rplidar: device closed")
)

// FailureClass tags a driver error with the recovery policy the lifecycle
// controller should apply, replacing nested per-call error handling with one
// uniform decision.
type FailureClass int

const (
	// FailureNone: no error.
	FailureNone FailureClass = iota

	// FailureRecoverable: the current scan is unusable but the session may
	// continue (transient desync that was re-aligned, a sparse sweep).
	FailureRecoverable

	// FailureFatal: the session must stop (I/O error, device gone,
	// cancellation, health failure).
	FailureFatal
)

// Classify maps a driver error onto the recovery policy.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrDesync):
		return FailureRecoverable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureFatal
	default:
		return FailureFatal
	}
}

// classified decorates err per its recovery policy: recoverable failures
// gain the Transient marker on their way out of the driver, fatal ones pass
// through unchanged.
func classified(err error) error {
	if Classify(err) == FailureRecoverable {
		return &transientError{err}
	}
	return err
}
