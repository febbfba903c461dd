package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	callSIDs = regexp.MustCompile(`\bCA[0-9a-f]{32}\b`)
)

// sensitiveFormKeys are webhook/API form fields that carry a phone
// number or other PII even when it doesn't match phoneRe (e.g. a
// short code or a client: identifier in From/To).
var sensitiveFormKeys = map[string]bool{
	"from": true,
	"to":   true,
}

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails, phone numbers, and carrier call ids when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	out = callSIDs.ReplaceAllString(out, "[REDACTED_CALL_SID]")
	return out
}

// FormParams redacts a webhook/API form map for logging: known
// PII-bearing keys (From, To — case-insensitive) are masked outright,
// every other value goes through Text.
func FormParams(form map[string]string) map[string]string {
	if !enabled.Load() || len(form) == 0 {
		return form
	}
	out := make(map[string]string, len(form))
	for k, v := range form {
		if sensitiveFormKeys[strings.ToLower(k)] {
			out[k] = "[REDACTED_PHONE]"
			continue
		}
		out[k] = Text(v)
	}
	return out
}
