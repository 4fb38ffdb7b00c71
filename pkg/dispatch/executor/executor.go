// Package executor provides the Executors a Dispatcher runs report sends on:
// the caller's goroutine, one goroutine per send, or a bounded worker pool
// that refuses work when saturated.
package executor

import (
	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// syncExecutor runs tasks on the calling goroutine.
type syncExecutor struct{}

// Sync returns an Executor that runs each task before Execute returns.
// Dispatch then blocks for the full duration of the send.
func Sync() dispatch.Executor {
	return syncExecutor{}
}

// Execute runs task and returns nil.
func (syncExecutor) Execute(task func()) error {
	task()
	return nil
}
