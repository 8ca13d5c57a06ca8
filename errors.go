package strata

import (
	"errors"
	"fmt"
)

// TransientError marks a per-task generation failure (sampler, upload or bake).
// The owning task is discarded and its dedup markers cleared; the coordinate
// stays eligible for re-queueing on a later frame.
type TransientError struct {
	Key ChunkKey
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient generation failure for %v: %v", e.Key, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ErrCapacity signals that a device buffer is undersized for the produced
// geometry. Implementations are expected to resize and retry rather than fail
// the task; it surfaces only when growth itself is impossible.
var ErrCapacity = errors.New("resource capacity exceeded")

// PreconditionError reports invalid wiring or configuration. It is fatal at
// construction time and never produced during a frame step.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition violated: " + e.Reason
}

func preconditionf(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}
