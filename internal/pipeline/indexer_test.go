package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"sentrypipe/internal/event"
	"sentrypipe/internal/rules"
)

// fakeStore is an in-memory EventStore for indexer tests.
type fakeStore struct {
	mu     sync.Mutex
	events []event.Event
	alerts []event.Alert
}

func (f *fakeStore) InsertEvents(ctx context.Context, events []event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, a event.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeStore) snapshot() ([]event.Event, []event.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := make([]event.Event, len(f.events))
	copy(evs, f.events)
	als := make([]event.Alert, len(f.alerts))
	copy(als, f.alerts)
	return evs, als
}

func suspiciousEvent(ip string) event.Event {
	return event.Event{IP: ip, Status: 500, Suspicious: true, Timestamp: time.Now()}
}

func TestIndexerFlushesOnBatchSize(t *testing.T) {
	fs := &fakeStore{}
	ix := &Indexer{Store: fs, BatchSize: 3, Rules: rules.Default()}

	in := make(chan event.Event, 10)
	for i := 0; i < 3; i++ {
		in <- event.Event{IP: "10.0.0.1", Status: 200}
	}
	close(in)

	ctx := context.Background()
	if err := ix.Run(ctx, in, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	evs, _ := fs.snapshot()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events persisted, got %d", len(evs))
	}
}

func TestIndexerFlushesPartialBatchOnClose(t *testing.T) {
	fs := &fakeStore{}
	ix := &Indexer{Store: fs, BatchSize: 100, Rules: rules.Default()}

	in := make(chan event.Event, 10)
	in <- event.Event{IP: "10.0.0.1", Status: 200}
	in <- event.Event{IP: "10.0.0.1", Status: 200}
	close(in)

	if err := ix.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	evs, _ := fs.snapshot()
	if len(evs) != 2 {
		t.Fatalf("expected partial batch of 2 flushed on close, got %d", len(evs))
	}
}

func TestIndexerFiresAlertAtThreshold(t *testing.T) {
	fs := &fakeStore{}
	ix := &Indexer{Store: fs, BatchSize: 5, Rules: rules.Default()}

	in := make(chan event.Event, 10)
	for i := 0; i < 5; i++ {
		in <- suspiciousEvent("1.2.3.4")
	}
	close(in)

	if err := ix.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	_, alerts := fs.snapshot()
	if len(alerts) < 1 {
		t.Fatal("expected at least one alert for 5 suspicious events from one IP")
	}
	a := alerts[0]
	if a.IP != "1.2.3.4" {
		t.Errorf("alert IP = %q, want 1.2.3.4", a.IP)
	}
	if a.Kind != "HIGH_ERROR_RATE" {
		t.Errorf("alert Kind = %q, want HIGH_ERROR_RATE", a.Kind)
	}
	if a.Count < 5 {
		t.Errorf("alert Count = %d, want >= 5", a.Count)
	}
	if got := a.WindowEnd.Sub(a.WindowStart); got != 60*time.Second {
		t.Errorf("window = %v, want 60s", got)
	}
}

func TestIndexerNoAlertBelowThreshold(t *testing.T) {
	fs := &fakeStore{}
	ix := &Indexer{Store: fs, BatchSize: 4, Rules: rules.Default()}

	in := make(chan event.Event, 10)
	for i := 0; i < 4; i++ {
		in <- suspiciousEvent("5.5.5.5")
	}
	close(in)

	if err := ix.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	_, alerts := fs.snapshot()
	if len(alerts) != 0 {
		t.Fatalf("expected no alert for only 4 suspicious events, got %d", len(alerts))
	}
}

func TestIndexerRefiresOnSustainedBurstAcrossBatches(t *testing.T) {
	// The alert engine is intentionally non-deduplicating: a sustained burst
	// spanning multiple batch flushes fires again on every flush while the
	// window remains hot.
	fs := &fakeStore{}
	ix := &Indexer{Store: fs, BatchSize: 5, Rules: rules.Default()}

	in := make(chan event.Event, 20)
	for i := 0; i < 10; i++ {
		in <- suspiciousEvent("9.9.9.9")
	}
	close(in)

	if err := ix.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	_, alerts := fs.snapshot()
	if len(alerts) < 2 {
		t.Fatalf("expected at least 2 alerts (one per batch flush), got %d", len(alerts))
	}
}

func TestIndexerIngestedAtNeverAfterIndexedAt(t *testing.T) {
	fs := &fakeStore{}
	ix := &Indexer{Store: fs, BatchSize: 1, Rules: rules.Default()}

	in := make(chan event.Event, 1)
	ingestedAt := time.Now()
	in <- event.Event{IP: "10.0.0.1", Status: 200, IngestedAt: ingestedAt}
	close(in)

	if err := ix.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	evs, _ := fs.snapshot()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].IndexedAt.Before(evs[0].IngestedAt) {
		t.Error("indexed_at must never be before ingested_at")
	}
}
