// scrubber.go implements fail-closed redaction of report messages, stack
// traces and custom data.

package dispatch

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys contains additional case-insensitive substrings that mark
	// a data key as sensitive.
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for messages (default: 4096).
	MaxMessageSize int

	// MaxStackTraceSize is the maximum length for stack traces (default: 32768).
	MaxStackTraceSize int

	// MaxDataValueSize is the maximum size per data value (default: 1024).
	MaxDataValueSize int

	// MaxJSONSize is the maximum size of a scrubbed JSON data value (default: 16384).
	MaxJSONSize int

	// ScrubMessages enables pattern redaction of messages and data values (default: true).
	ScrubMessages bool

	// FailClosed redacts a JSON data value entirely when it cannot be parsed (default: true).
	FailClosed bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize:    4096,
		MaxStackTraceSize: 32768,
		MaxDataValueSize:  1024,
		MaxJSONSize:       16384,
		ScrubMessages:     true,
		FailClosed:        true,
	}
}

// Compiled once at package init
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),

	// Credentials
	regexp.MustCompile(`(?i)password[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)secret[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)passwd[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)credential[=:\s]+['"]?[^\s'"",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
}

var (
	pathNormalizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/home/[^/]+/`),
		regexp.MustCompile(`/Users/[^/]+/`),
		regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
		regexp.MustCompile(`/tmp/[^/]+/`),
	}

	addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// Scrubber redacts sensitive data from reports.
type Scrubber struct {
	cfg ScrubberConfig
}

// NewScrubber creates a new scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	return &Scrubber{cfg: cfg}
}

// ScrubMessage redacts secrets and PII from a message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if !s.cfg.ScrubMessages {
		return msg
	}

	if s.cfg.MaxMessageSize > 0 && len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}

	for _, pattern := range messageScrubPatterns {
		msg = pattern.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}

// ScrubStackTrace normalizes user paths, masks addresses and limits size.
func (s *Scrubber) ScrubStackTrace(trace string) string {
	if trace == "" {
		return trace
	}

	result := trace
	for _, pattern := range pathNormalizationPatterns {
		result = pattern.ReplaceAllString(result, "/[PATH]/")
	}
	result = addressPattern.ReplaceAllString(result, "0x...")

	if s.cfg.MaxStackTraceSize > 0 && len(result) > s.cfg.MaxStackTraceSize {
		result = truncateWithMarker(result, s.cfg.MaxStackTraceSize)
	}
	return result
}

// ScrubData redacts values of sensitive keys and scrubs the remaining values.
// Values that hold a JSON object or array are scrubbed recursively.
func (s *Scrubber) ScrubData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}

	result := make(map[string]string, len(data))
	for key, value := range data {
		switch {
		case s.isSensitiveKey(key):
			result[key] = "[REDACTED]"
		case looksLikeJSON(value):
			result[key] = s.ScrubJSON(value)
		default:
			value = s.ScrubMessage(value)
			if s.cfg.MaxDataValueSize > 0 && len(value) > s.cfg.MaxDataValueSize {
				value = truncateWithMarker(value, s.cfg.MaxDataValueSize)
			}
			result[key] = value
		}
	}
	return result
}

// ScrubJSON recursively scrubs a JSON document.
// Returns "[REDACTED:SCRUB_ERROR]" on any error when FailClosed is set.
func (s *Scrubber) ScrubJSON(doc string) string {
	var data any
	if err := json.Unmarshal([]byte(doc), &data); err != nil {
		if s.cfg.FailClosed {
			return "[REDACTED:SCRUB_ERROR]"
		}
		return doc
	}

	result, err := json.Marshal(s.scrubJSONValue(data))
	if err != nil {
		if s.cfg.FailClosed {
			return "[REDACTED:SCRUB_ERROR]"
		}
		return doc
	}

	out := string(result)
	if s.cfg.MaxJSONSize > 0 && len(out) > s.cfg.MaxJSONSize {
		out = truncateWithMarker(out, s.cfg.MaxJSONSize)
	}
	return out
}

func (s *Scrubber) scrubJSONValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			if s.isSensitiveKey(key) {
				result[key] = "[REDACTED]"
			} else {
				result[key] = s.scrubJSONValue(value)
			}
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = s.scrubJSONValue(value)
		}
		return result
	case string:
		return s.ScrubMessage(v)
	default:
		return v
	}
}

// isSensitiveKey checks if a data key matches sensitive patterns.
func (s *Scrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	for _, pattern := range s.cfg.SensitiveKeys {
		if pattern != "" && strings.Contains(keyLower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func looksLikeJSON(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}
