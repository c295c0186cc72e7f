package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sentrypipe/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInsertEventsAndSummarize(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	ingested := time.Now()
	indexed := ingested.Add(5 * time.Millisecond)

	events := []event.Event{
		{IP: "10.0.0.1", Timestamp: ingested, Method: "GET", URL: "/index.html", Status: 200, Bytes: 100, IPClass: event.IPClassPrivate, IngestedAt: ingested, IndexedAt: indexed},
		{IP: "8.8.8.8", Timestamp: ingested, Method: "GET", URL: "/missing", Status: 404, Bytes: 0, IPClass: event.IPClassPublic, Suspicious: true, IngestedAt: ingested, IndexedAt: indexed},
	}
	if err := st.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	a := event.Alert{Kind: "HIGH_ERROR_RATE", IP: "8.8.8.8", Count: 5, WindowStart: ingested, WindowEnd: ingested.Add(60 * time.Second), CreatedAt: indexed}
	if err := st.InsertAlert(ctx, a); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	sum, err := st.Summarize(ctx, time.Second)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", sum.TotalEvents)
	}
	if sum.TotalAlerts != 1 {
		t.Errorf("TotalAlerts = %d, want 1", sum.TotalAlerts)
	}
	if sum.MeanLatencyMs <= 0 {
		t.Errorf("MeanLatencyMs = %v, want > 0", sum.MeanLatencyMs)
	}
}

func TestInsertEventsEmptyBatchIsNoop(t *testing.T) {
	st := openTestStore(t)
	if err := st.InsertEvents(context.Background(), nil); err != nil {
		t.Fatalf("InsertEvents(nil): %v", err)
	}
	sum, err := st.Summarize(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalEvents != 0 {
		t.Errorf("TotalEvents = %d, want 0", sum.TotalEvents)
	}
}

func TestSummarizeOnEmptyStore(t *testing.T) {
	st := openTestStore(t)
	sum, err := st.Summarize(context.Background(), 10*time.Second)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalEvents != 0 || sum.TotalAlerts != 0 {
		t.Errorf("expected zero counts on empty store, got %+v", sum)
	}
	if sum.Throughput() != 0 {
		t.Errorf("Throughput on empty store = %v, want 0", sum.Throughput())
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
}
