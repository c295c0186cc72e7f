// Package pipeline wires the parser pool, indexer, alert engine, and
// metrics collector into the concurrent processing core: raw lines flow in
// on Q_raw, enriched events flow out through the indexer onto storage, and
// alerts flow onto Q_alerts for the metrics collector to drain.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sentrypipe/internal/classify"
	"sentrypipe/internal/enrich"
	"sentrypipe/internal/event"
	"sentrypipe/internal/grammar"
)

// parserPollTimeout bounds how long a worker waits on an empty Q_raw before
// re-checking the shutdown signal.
const parserPollTimeout = 1 * time.Second

// ParserPool runs N stateless parser/enricher workers pulling from in and
// pushing onto out. Workers are fully interchangeable; there are no
// ordering guarantees across them.
type ParserPool struct {
	Workers int
}

// Run starts the pool and blocks until every worker exits: on ctx
// cancellation, once in is drained and closed. It closes out when all
// workers have finished so the indexer can detect completion.
func (p *ParserPool) Run(ctx context.Context, in <-chan event.Raw, out chan<- event.Event) {
	n := p.Workers
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		id := i
		go func() {
			defer wg.Done()
			runParserWorker(ctx, id, in, out)
		}()
	}

	wg.Wait()
	close(out)
}

func runParserWorker(ctx context.Context, id int, in <-chan event.Raw, out chan<- event.Event) {
	parsed, dropped := 0, 0
	defer func() {
		slog.Debug("parser worker stopped", "worker", id, "parsed", parsed, "dropped", dropped)
	}()

	for {
		select {
		case raw, ok := <-in:
			if !ok {
				return
			}
			e, ok := grammar.Parse(raw.Line)
			if !ok {
				dropped++
				continue
			}
			e.IngestedAt = raw.IngestedAt
			e.IPClass = enrich.ClassifyIP(e.IP)
			ua := enrich.ClassifyUserAgent(e.UserAgent)
			e.Browser, e.OS = ua.Browser, ua.OS
			e.Suspicious = classify.IsSuspicious(e)

			select {
			case out <- e:
				parsed++
			case <-ctx.Done():
				return
			}
		case <-time.After(parserPollTimeout):
			if ctx.Err() != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
