// recover.go reports panics from goroutines that have no other failure hook.

package dispatch

import (
	"context"
	"runtime/debug"
)

// PanicTag is added to every report created by Recover.
const PanicTag = "panic"

// Recover captures a panic, dispatches the recovered value and returns it.
// It does not re-panic. The recovered value is dispatched as is, so
// exclusions registered for its exact type apply.
//
// Use in defer:
//
//	go func() {
//	    ctx := dispatch.NewWorker(ctx)
//	    defer dispatch.Recover(ctx, d)
//	    // code that might panic
//	}()
func Recover(ctx context.Context, d *Dispatcher) any {
	r := recover()
	if r == nil {
		return nil
	}

	req := NewRequest(r, NewTagSet(PanicTag), map[string]string{
		StackTraceKey: string(debug.Stack()),
	})

	// A refused report must not turn a recovered panic into a new failure.
	if err := d.Dispatch(ctx, req); err != nil {
		d.logger.Warn("panic report not submitted", "error", err)
	}

	return r
}
