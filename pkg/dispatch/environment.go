// environment.go captures process state at report time.

package dispatch

import (
	"os"
	"runtime"
	"time"
)

// CaptureEnvironment captures process metrics at the current moment.
// startTime is used to calculate uptime.
func CaptureEnvironment(startTime time.Time) *Environment {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // empty hostname is acceptable

	uptimeMs := time.Since(startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0
	}

	return &Environment{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       uptimeMs,
		HostName:       hostname,
	}
}
