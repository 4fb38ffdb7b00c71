// executor.go defines the Executor collaborator.

package dispatch

import "context"

// Executor runs report sends.
//
// Execute either runs task before returning, hands it to another goroutine,
// or refuses it. A refusal must be reported synchronously with an error
// wrapping ErrRejected (or ErrExecutorClosed); Dispatch returns that error to
// its caller unchanged.
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func()) error

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// closableExecutor is implemented by executors that own goroutines.
type closableExecutor interface {
	Close(ctx context.Context) error
}
