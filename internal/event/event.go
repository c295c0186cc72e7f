// Package event defines the records that flow through the pipeline and the
// rows they become once persisted.
package event

import "time"

// Raw is a single unparsed log line as handed off by the ingestor. It is
// never persisted.
type Raw struct {
	Line       string
	IngestedAt time.Time
}

// Event is an enriched, parsed log record. Most fields are populated by the
// parser/enricher; IndexedAt is stamped by the indexer at batch formation.
type Event struct {
	ID int64

	IP        string
	Timestamp time.Time

	Method    string
	URL       string
	Referer   string
	UserAgent string

	Status uint16
	Bytes  uint64

	Browser string
	OS      string
	IPClass string

	Suspicious bool

	IngestedAt time.Time
	IndexedAt  time.Time
}

// Alert is a persisted detection firing.
type Alert struct {
	ID          int64
	Kind        string
	IP          string
	Count       int
	WindowStart time.Time
	WindowEnd   time.Time
	CreatedAt   time.Time
}

// IP class enumeration, set by internal/enrich.ClassifyIP.
const (
	IPClassPrivate   = "private"
	IPClassLocalhost = "localhost"
	IPClassPublic    = "public"
)

// Alert kinds understood by the default rule set.
const (
	KindHighErrorRate = "HIGH_ERROR_RATE"
)
