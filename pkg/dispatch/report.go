// report.go defines the report handed to a ReportClient.

package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// StackTraceKey is the data key Recover uses to carry a panic's stack trace.
// It is lifted into Report.StackTrace and removed from Report.Data.
const StackTraceKey = "stack_trace"

// Environment captures process metrics at the time a report was built.
type Environment struct {
	// MemoryBytes is the current heap allocation in bytes.
	MemoryBytes int64

	// GoroutineCount is the number of live goroutines.
	GoroutineCount int

	// UptimeMs is the dispatcher's uptime in milliseconds.
	UptimeMs int64

	// HostName is the machine the failure happened on.
	HostName string
}

// Report is what a ReportClient transmits. The dispatcher builds one per
// reported failure on the calling goroutine, before the send is submitted.
type Report struct {
	// ID is a unique identifier for this report (UUID).
	ID string

	// Timestamp is when the failure was dispatched.
	Timestamp time.Time

	// Fingerprint groups reports of the same failure.
	Fingerprint string

	// Failure is the value that was dispatched, unchanged.
	Failure any

	// FailureType is the dynamic type of Failure, e.g. "*fs.PathError".
	FailureType string

	// Message is the failure's Error() text or its %v rendering.
	Message string

	// Causes lists the dynamic types found by repeatedly unwrapping Failure.
	Causes []string

	// StackTrace is optional. It comes from a StackTrace() string method on
	// the failure or from the StackTraceKey data entry.
	StackTrace string

	// Tags are the custom tags of the request.
	Tags TagSet

	// Data is the custom key/value data of the request.
	Data map[string]string

	// Worker identifies the worker that dispatched the failure, if any.
	Worker WorkerID

	// Environment is set when the dispatcher was built WithEnvironment.
	Environment *Environment
}

type stackTracer interface {
	StackTrace() string
}

// TypeName returns the dynamic type name of v, or "<nil>".
func TypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

// newReport assembles the report for req.
func newReport(req Request, worker WorkerID) Report {
	failure := req.Failure()
	data := req.Data()

	report := Report{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Failure:     failure,
		FailureType: TypeName(failure),
		Message:     failureMessage(failure),
		Causes:      causeChain(failure),
		Tags:        req.Tags(),
		Data:        data,
		Worker:      worker,
	}

	if st, ok := failure.(stackTracer); ok {
		report.StackTrace = st.StackTrace()
	}
	if trace, ok := data[StackTraceKey]; ok {
		if report.StackTrace == "" {
			report.StackTrace = trace
		}
		delete(report.Data, StackTraceKey)
	}

	return report
}

// failureMessage formats a failure value as a string.
func failureMessage(failure any) string {
	if failure == nil {
		return "<nil>"
	}
	if err, ok := failure.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", failure)
}

// causeChain follows single-error Unwrap links. Joined errors stop the walk.
func causeChain(failure any) []string {
	err, ok := failure.(error)
	if !ok {
		return nil
	}

	var causes []string
	for depth := 0; depth < 32; depth++ {
		err = errors.Unwrap(err)
		if err == nil {
			break
		}
		causes = append(causes, TypeName(err))
	}
	return causes
}
