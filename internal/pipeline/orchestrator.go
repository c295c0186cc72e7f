package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sentrypipe/internal/event"
	"sentrypipe/internal/logsource"
	"sentrypipe/internal/rules"
	"sentrypipe/internal/store"
)

// stageGrace is the per-stage shutdown grace unit. After shutdown is
// signaled the orchestrator waits stageGrace*4 for all four stages together,
// not stageGrace for each stage in turn, before giving up on them.
const stageGrace = 2 * time.Second

// Config gathers the CLI-derived settings the orchestrator needs to start
// every stage in dependency order.
type Config struct {
	InputPath     string
	Workers       int
	Rate          int
	BatchSize     int
	RunTime       time.Duration
	DBPath        string
	MetricsPath   string
	MetricsAddr   string
	MetricsPeriod time.Duration
	Rules         rules.Set
}

// Run starts the indexer and metrics collector, then the parser pool, then
// the ingestor — the dependency order §4.7 specifies — waits for the
// runtime budget or an interrupt, and drains every stage before returning
// the run summary.
func Run(ctx context.Context, cfg Config) (store.Summary, error) {
	if _, err := os.Stat(cfg.InputPath); err != nil {
		return store.Summary{}, fmt.Errorf("input file: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return store.Summary{}, fmt.Errorf("open store: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			slog.Info("orchestrator: interrupt received, shutting down")
			cancel()
		case <-runCtx.Done():
		}
	}()

	qRaw := make(chan event.Raw, cfg.Workers*100)
	qParsed := make(chan event.Event, cfg.BatchSize*10)
	qAlerts := make(chan event.Alert, 1024)

	stats := &Stats{}

	indexer := &Indexer{
		Store:     st,
		BatchSize: cfg.BatchSize,
		Rules:     cfg.Rules,
		Alerts:    qAlerts,
	}

	metricsPeriod := cfg.MetricsPeriod
	if metricsPeriod <= 0 {
		metricsPeriod = 5 * time.Second
	}
	collector := &MetricsCollector{
		Interval:    metricsPeriod,
		CSVPath:     cfg.MetricsPath,
		RawQueue:    qRaw,
		Alerts:      qAlerts,
		Stats:       stats,
		Indexer:     indexer,
		MetricsAddr: cfg.MetricsAddr,
	}

	var wg sync.WaitGroup
	var indexerErr error

	// coreWG tracks only the processing core (ingestor, parser pool,
	// indexer) — the stages a single-pass, no-looping run (RunTime == 0)
	// will drain on their own once the file is exhausted. The metrics
	// collector has no such natural end (it just ticks), so it is tracked
	// separately and told to stop once the core finishes.
	var coreWG sync.WaitGroup

	// Dependency order: indexer and metrics first, then parser pool, then
	// the ingestor — so every consumer is ready before the first producer
	// starts pushing.
	coreWG.Add(1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer coreWG.Done()
		indexerErr = indexer.Run(runCtx, qParsed, stats)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := collector.Run(runCtx); err != nil {
			slog.Error("orchestrator: metrics collector failed", "err", err)
		}
	}()

	pool := &ParserPool{Workers: cfg.Workers}
	coreWG.Add(1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer coreWG.Done()
		pool.Run(runCtx, qRaw, qParsed)
	}()

	reader := &logsource.Reader{Path: cfg.InputPath, Rate: cfg.Rate, RunTime: cfg.RunTime}
	coreWG.Add(1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer coreWG.Done()
		if err := reader.Run(runCtx, qRaw); err != nil {
			slog.Error("orchestrator: ingestor failed", "err", err)
		}
	}()

	start := time.Now()

	coreDone := make(chan struct{})
	go func() {
		coreWG.Wait()
		close(coreDone)
	}()

	// A nil timeout channel blocks forever in the select below, which is
	// exactly what an unbounded run (RunTime == 0) needs: no runtime branch,
	// just natural drain, interrupt, or the caller's own ctx deadline.
	var timeout <-chan time.Time
	if cfg.RunTime > 0 {
		timeout = time.After(cfg.RunTime)
	}

	select {
	case <-coreDone:
		slog.Info("orchestrator: processing core drained")
	case <-timeout:
		slog.Info("orchestrator: runtime budget elapsed")
	case <-runCtx.Done():
	}
	cancel() // stop the metrics collector too, however we got here

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stageGrace * 4):
		slog.Warn("orchestrator: stages did not drain within grace period; forcing exit")
	}

	elapsed := time.Since(start)
	st.Close()

	if indexerErr != nil {
		return store.Summary{}, fmt.Errorf("indexer: %w", indexerErr)
	}

	// Re-open read-only for the run summary, matching the shutdown
	// coordinator's contract: the indexer's write handle is fully closed
	// before anything else touches the database.
	roStore, err := store.OpenReadOnly(cfg.DBPath)
	if err != nil {
		return store.Summary{}, fmt.Errorf("open store read-only: %w", err)
	}
	defer roStore.Close()

	summary, err := roStore.Summarize(context.Background(), elapsed)
	if err != nil {
		return store.Summary{}, fmt.Errorf("summarize run: %w", err)
	}
	return summary, nil
}
