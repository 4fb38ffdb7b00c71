// fingerprint.go generates stable hashes for grouping reports of the same failure.

package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Fingerprint generates a hash for grouping similar reports.
// The fingerprint is based on:
//   - the failure type and its cause chain
//   - the first 3 stack frames (function names only, normalized)
//
// Messages, tags, data, IDs, timestamps, line numbers and addresses are ignored.
func Fingerprint(report Report) string {
	parts := []string{report.FailureType}
	parts = append(parts, report.Causes...)
	parts = append(parts, normalizeStackTrace(report.StackTrace)...)

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:16])
}

var (
	// Match function names like "main.doSomething" or "pkg/subpkg.Function"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./*()]+\.[a-zA-Z0-9_]+)`)

	offsetPattern = regexp.MustCompile(`\+0x[0-9a-fA-F]+`)
)

// normalizeStackTrace extracts the first 3 function names from a goroutine
// dump, stripping arguments, file paths, line numbers and addresses.
func normalizeStackTrace(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, raw := range strings.Split(trace, "\n") {
		// File path lines are indented with a tab
		if strings.HasPrefix(raw, "\t") {
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "/") {
			continue
		}

		line = offsetPattern.ReplaceAllString(line, "")
		line = addressPattern.ReplaceAllString(line, "")
		if idx := strings.LastIndex(line, "("); idx > 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)

		// Frames from the runtime and from debug.Stack itself are noise.
		if strings.HasPrefix(line, "runtime/debug.") || strings.HasPrefix(line, "panic") {
			continue
		}

		if match := funcNamePattern.FindString(line); match != "" {
			frames = append(frames, match)
			if len(frames) >= 3 {
				break
			}
		}
	}
	return frames
}
