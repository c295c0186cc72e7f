// Package grammar parses raw access-log lines into events. Two line
// grammars are tried in order, first match wins: an Apache-style
// error/notice form, then the combined/common log form.
package grammar

import (
	"regexp"
	"strconv"
	"time"

	"sentrypipe/internal/event"
)

// errorPattern matches: [timestamp] [level] [context]? message
var errorPattern = regexp.MustCompile(`^\[([\w\s:/+\-]+)\] \[(\w+)\](?:\s\[([^\]]+)\])?\s(.+)$`)

// clientIPPattern extracts "client <ip>" from an error-form context string.
var clientIPPattern = regexp.MustCompile(`client\s([\d.]+)`)

// clfPattern matches: ip - - [d/mon/YYYY:HH:MM:SS tz] "METHOD url PROTO" status bytes ("referer" "ua")?
var clfPattern = regexp.MustCompile(`^(\S+) \S+ \S+ \[([\w:/]+\s[+\-]\d{4})\] "(\S+) (\S+) \S+" (\d{3}) (\S+)(?: "([^"]*)" "([^"]*)")?`)

const errorTimeLayout = "Mon Jan 02 15:04:05 2006"
const clfTimeLayout = "02/Jan/2006:15:04:05"

// maxErrorURLLen truncates the synthesized url field for error/notice lines.
const maxErrorURLLen = 100

// Parse converts a raw log line into an Event, or returns ok=false when
// neither grammar matches. Timestamp parse failures fall back to now rather
// than dropping the line.
func Parse(line string) (event.Event, bool) {
	if m := errorPattern.FindStringSubmatch(line); m != nil {
		return parseErrorForm(m), true
	}
	if m := clfPattern.FindStringSubmatch(line); m != nil {
		return parseCombinedForm(m), true
	}
	return event.Event{}, false
}

func parseErrorForm(m []string) event.Event {
	timestampStr, level, context, message := m[1], m[2], m[3], m[4]

	ts, err := time.Parse(errorTimeLayout, timestampStr)
	if err != nil {
		ts = time.Now()
	}

	ip := ""
	if im := clientIPPattern.FindStringSubmatch(context); im != nil {
		ip = im[1]
	}

	status := uint16(200)
	if level == "error" {
		status = 400
	}

	url := message
	if len(url) > maxErrorURLLen {
		url = url[:maxErrorURLLen]
	}

	return event.Event{
		IP:        ip,
		Timestamp: ts,
		Method:    "LOG",
		URL:       url,
		Status:    status,
		Bytes:     0,
		Referer:   context,
		// UserAgent is set to the log level for this synthesized form. This is a
		// placeholder inherited from the original schema, not a real UA string.
		UserAgent: level,
	}
}

func parseCombinedForm(m []string) event.Event {
	ip, timestampStr, method, url, statusStr, bytesStr, referer, userAgent := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]

	ts, err := time.Parse(clfTimeLayout, firstField(timestampStr))
	if err != nil {
		ts = time.Now()
	}

	var bytesSent uint64
	if bytesStr != "-" {
		if n, err := strconv.ParseUint(bytesStr, 10, 64); err == nil {
			bytesSent = n
		}
	}

	status, _ := strconv.ParseUint(statusStr, 10, 16)

	return event.Event{
		IP:        ip,
		Timestamp: ts,
		Method:    method,
		URL:       url,
		Status:    uint16(status),
		Bytes:     bytesSent,
		Referer:   referer,
		UserAgent: userAgent,
	}
}

// firstField returns the part of a "02/Jan/2006:15:04:05 +0000"-style string
// before the first space, i.e. the timezone-free timestamp.
func firstField(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}
