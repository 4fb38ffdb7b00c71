// errors.go defines the sentinel errors surfaced by the dispatcher and executors.

package dispatch

import "errors"

var (
	// ErrInvalidArgument is returned for nil failure types and nil failures.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRejected is returned by an Executor that cannot accept another task.
	// Dispatch returns it unchanged; the failure being reported is dropped.
	ErrRejected = errors.New("report task rejected")

	// ErrExecutorClosed is returned by an Executor after Close.
	ErrExecutorClosed = errors.New("executor is closed")
)
