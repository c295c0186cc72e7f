package enrich

import "strings"

// UserAgent holds the browser/OS classification for a User-Agent string.
type UserAgent struct {
	Browser string
	OS      string
}

// ClassifyUserAgent performs a case-insensitive, ordered substring match.
// Order matters: Chrome UAs also contain "safari", so Chrome must be checked
// first.
func ClassifyUserAgent(ua string) UserAgent {
	lower := strings.ToLower(ua)

	var browser string
	switch {
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	case strings.Contains(lower, "msie"), strings.Contains(lower, "trident"):
		browser = "Internet Explorer"
	default:
		browser = "Other"
	}

	var os string
	switch {
	case strings.Contains(lower, "windows"):
		os = "Windows"
	case strings.Contains(lower, "mac"), strings.Contains(lower, "darwin"):
		os = "macOS"
	case strings.Contains(lower, "linux"):
		os = "Linux"
	case strings.Contains(lower, "android"):
		os = "Android"
	case strings.Contains(lower, "ios"), strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		os = "iOS"
	default:
		os = "Other"
	}

	return UserAgent{Browser: browser, OS: os}
}
