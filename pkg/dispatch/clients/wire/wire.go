// Package wire defines the JSON document the network report clients send.
package wire

import (
	"time"

	"github.com/bytedance/sonic"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// Payload is the JSON representation of a dispatch.Report.
type Payload struct {
	ID          string            `json:"id"`
	OccurredOn  time.Time         `json:"occurred_on"`
	Fingerprint string            `json:"fingerprint"`
	Version     string            `json:"version,omitempty"`
	Error       Error             `json:"error"`
	Tags        []string          `json:"tags"`
	Data        map[string]string `json:"data"`
	Worker      string            `json:"worker,omitempty"`
	Environment *Environment      `json:"environment,omitempty"`
}

// Error describes the reported failure.
type Error struct {
	Type       string   `json:"type"`
	Message    string   `json:"message"`
	Causes     []string `json:"causes,omitempty"`
	StackTrace string   `json:"stack_trace,omitempty"`
}

// Environment mirrors dispatch.Environment.
type Environment struct {
	MemoryBytes    int64  `json:"memory_bytes"`
	GoroutineCount int    `json:"goroutine_count"`
	UptimeMs       int64  `json:"uptime_ms"`
	HostName       string `json:"host_name"`
}

// FromReport builds a Payload. commonTags are merged into the report's tags.
func FromReport(report dispatch.Report, version string, commonTags dispatch.TagSet) Payload {
	data := report.Data
	if data == nil {
		data = map[string]string{}
	}

	p := Payload{
		ID:          report.ID,
		OccurredOn:  report.Timestamp.UTC(),
		Fingerprint: report.Fingerprint,
		Version:     version,
		Error: Error{
			Type:       report.FailureType,
			Message:    report.Message,
			Causes:     report.Causes,
			StackTrace: report.StackTrace,
		},
		Tags:   report.Tags.Union(commonTags).Slice(),
		Data:   data,
		Worker: string(report.Worker),
	}

	if env := report.Environment; env != nil {
		p.Environment = &Environment{
			MemoryBytes:    env.MemoryBytes,
			GoroutineCount: env.GoroutineCount,
			UptimeMs:       env.UptimeMs,
			HostName:       env.HostName,
		}
	}
	return p
}

// Encode marshals a Payload to JSON.
func Encode(p Payload) ([]byte, error) {
	return sonic.Marshal(p)
}

// Decode unmarshals a Payload from JSON.
func Decode(data []byte) (Payload, error) {
	var p Payload
	err := sonic.Unmarshal(data, &p)
	return p, err
}
