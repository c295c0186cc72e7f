// Package classify flags events as suspicious using a small set of pure
// heuristics.
package classify

import (
	"strings"

	"sentrypipe/internal/event"
)

// attackPatterns are substrings of the URL (checked case-insensitively) that
// indicate common attack probes: path traversal, XSS, SQL injection, file
// inclusion, command injection.
var attackPatterns = []string{
	"../",
	"script>",
	"union select",
	"/etc/passwd",
	"cmd=",
}

// IsSuspicious reports whether an event should be flagged for the alert
// engine's sliding-window tracking.
func IsSuspicious(e event.Event) bool {
	if e.Status >= 400 {
		return true
	}

	url := strings.ToLower(e.URL)
	for _, p := range attackPatterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}
