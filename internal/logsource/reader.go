// Package logsource reads raw log lines from a file at a controlled rate and
// feeds them to a channel. When a runtime budget is set, it loops back to
// the start of the file on EOF to sustain the target rate; with no budget,
// it makes a single pass and stops at EOF.
package logsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"sentrypipe/internal/event"
)

// Tick cadence for the two rate-shaping modes.
const (
	rateSleep      = 100 * time.Millisecond
	unlimitedChunk = 100
	unlimitedSleep = 10 * time.Millisecond
)

// Reader produces Raw messages from a file source at a target rate.
type Reader struct {
	Path    string
	Rate    int           // events/sec, 0 = unlimited
	RunTime time.Duration // 0 = single pass to EOF, no looping replay
}

// Run reads lines from Path and sends them on out until ctx is cancelled, the
// runtime budget expires, or the source yields no more lines. It closes out
// before returning.
func (r *Reader) Run(ctx context.Context, out chan<- event.Raw) error {
	defer close(out)

	f, err := os.Open(r.Path)
	if err != nil {
		slog.Error("ingestor: failed to open input", "path", r.Path, "err", err)
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	loop := r.RunTime > 0

	chunkSize := unlimitedChunk
	sleep := unlimitedSleep
	if r.Rate > 0 {
		chunkSize = r.Rate / 10
		if chunkSize < 1 {
			chunkSize = 1
		}
		sleep = rateSleep
	}

	start := time.Now()
	sent := 0

	for {
		if ctx.Err() != nil {
			break
		}
		if loop && time.Since(start) >= r.RunTime {
			break
		}

		lines, exhausted, ferr := fillChunk(f, &br, chunkSize, loop)
		if ferr != nil {
			slog.Error("ingestor: I/O error reading input", "path", r.Path, "err", ferr)
			return fmt.Errorf("read input: %w", ferr)
		}
		if exhausted && len(lines) == 0 {
			break
		}

		for _, line := range lines {
			msg := event.Raw{Line: line, IngestedAt: time.Now()}
			select {
			case out <- msg:
				sent++
			case <-ctx.Done():
				slog.Info("ingestor: stopped", "events_sent", sent)
				return nil
			}
		}

		if exhausted {
			break
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			slog.Info("ingestor: stopped", "events_sent", sent)
			return nil
		}
	}

	slog.Info("ingestor: finished", "events_sent", sent)
	return nil
}

// fillChunk reads up to n non-empty trimmed lines. When loop is true, EOF
// mid-chunk rewinds the file to offset zero and keeps filling, sustaining a
// looping replay; when loop is false, EOF ends the chunk (and the read)
// immediately, giving a single pass over the file. exhausted reports that
// the source has no more lines to offer under the current mode — the
// terminal condition for an exhausted single-pass file, or for a genuinely
// empty file even under looping replay. A non-nil err is a genuine I/O
// failure, distinct from ordinary EOF, and the caller must stop the stage.
func fillChunk(f *os.File, br **bufio.Reader, n int, loop bool) (lines []string, exhausted bool, err error) {
	consecutiveEmptyRewinds := 0
	for len(lines) < n {
		line, rerr := (*br).ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			lines = append(lines, trimmed)
			consecutiveEmptyRewinds = 0
		}
		if rerr == nil {
			continue
		}
		if rerr != io.EOF {
			return lines, true, rerr
		}

		if !loop {
			return lines, true, nil
		}

		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return lines, true, serr
		}
		*br = bufio.NewReader(f)

		if trimmed == "" {
			consecutiveEmptyRewinds++
			if consecutiveEmptyRewinds >= 2 {
				return lines, true, nil
			}
		}
	}
	return lines, false, nil
}
