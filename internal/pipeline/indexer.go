package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"sentrypipe/internal/event"
	"sentrypipe/internal/rules"
)

// indexerPollTimeout bounds how long the indexer waits on an empty Q_parsed
// before re-checking the shutdown signal.
const indexerPollTimeout = 1 * time.Second

// EventStore is the persistence surface the indexer needs. internal/store.Store
// satisfies it; tests substitute an in-memory fake.
type EventStore interface {
	InsertEvents(ctx context.Context, events []event.Event) error
	InsertAlert(ctx context.Context, a event.Alert) error
}

// Indexer batches parsed events, flushes them to storage, and evaluates the
// sliding-window alert rules against the per-IP suspicious ring.
type Indexer struct {
	Store     EventStore
	BatchSize int
	Rules     rules.Set
	Alerts    chan<- event.Alert // Q_alerts; nil is permitted for tests

	rings map[ruleIP]*suspiciousRing

	processed int64 // atomic; running counter of events flushed, for metrics
}

type ruleIP struct {
	rule string
	ip   string
}

// Processed returns the running count of events that have been written to
// storage so far. Safe to call concurrently with Run: the metrics collector
// samples it from its own goroutine every tick.
func (ix *Indexer) Processed() int64 { return atomic.LoadInt64(&ix.processed) }

// Run pulls parsed events from in, batches them, and flushes on batch-size
// or shutdown. It returns once in is closed and any partial batch has been
// flushed.
func (ix *Indexer) Run(ctx context.Context, in <-chan event.Event, stats *Stats) error {
	if ix.rings == nil {
		ix.rings = make(map[ruleIP]*suspiciousRing)
	}
	batch := make([]event.Event, 0, ix.BatchSize)

	flush := func(ctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.flush(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	// finalFlush writes the partial batch on exit. ctx may already be
	// cancelled by then, so the store calls run on a context detached from
	// its cancellation and bounded by stageGrace instead.
	finalFlush := func() error {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stageGrace)
		defer cancel()
		return flush(fctx)
	}

	for {
		select {
		case e, ok := <-in:
			if !ok {
				err := finalFlush()
				if stats != nil {
					stats.setParsedQueueDepth(0)
				}
				return err
			}
			e.IndexedAt = time.Now()
			batch = append(batch, e)
			if stats != nil {
				stats.setParsedQueueDepth(len(in))
			}
			if len(batch) >= ix.BatchSize {
				if err := flush(ctx); err != nil {
					return err
				}
			}
		case <-time.After(indexerPollTimeout):
			if ctx.Err() != nil {
				return finalFlush()
			}
		case <-ctx.Done():
			return finalFlush()
		}
	}
}

// flush writes a full batch to storage in a single transaction, updates the
// per-IP suspicious rings, and evaluates every enabled rule against them.
func (ix *Indexer) flush(ctx context.Context, batch []event.Event) error {
	if err := ix.Store.InsertEvents(ctx, batch); err != nil {
		slog.Error("indexer: store write failed", "err", err, "batch_size", len(batch))
		return err
	}
	atomic.AddInt64(&ix.processed, int64(len(batch)))

	now := time.Now()
	enabled := ix.Rules.Enabled()

	for _, e := range batch {
		if !e.Suspicious {
			continue
		}
		for _, rule := range enabled {
			key := ruleIP{rule: rule.Name, ip: e.IP}
			ring, ok := ix.rings[key]
			if !ok {
				ring = &suspiciousRing{}
				ix.rings[key] = ring
			}
			ring.add(e.IndexedAt)
		}
	}

	for _, rule := range enabled {
		for key, ring := range ix.rings {
			if key.rule != rule.Name {
				continue
			}
			count := ring.countSince(now, rule.Window)
			if count < rule.Threshold {
				continue
			}
			a := event.Alert{
				Kind:        rule.Kind,
				IP:          key.ip,
				Count:       count,
				WindowStart: now.Add(-rule.Window),
				WindowEnd:   now,
				CreatedAt:   now,
			}
			if err := ix.Store.InsertAlert(ctx, a); err != nil {
				slog.Error("indexer: alert write failed", "err", err, "ip", key.ip, "kind", a.Kind)
				return err
			}
			if ix.Alerts != nil {
				select {
				case ix.Alerts <- a:
				case <-ctx.Done():
				}
			}
			slog.Info("alert fired", "kind", a.Kind, "ip", a.IP, "count", a.Count)
		}
	}

	return nil
}
