package pipeline

import (
	"context"
	"testing"
	"time"

	"sentrypipe/internal/event"
)

func TestParserPoolParsesValidLines(t *testing.T) {
	pool := &ParserPool{Workers: 2}

	in := make(chan event.Raw, 10)
	out := make(chan event.Event, 10)

	lines := []string{
		`10.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GET /index.html HTTP/1.0" 200 100 "-" "Mozilla/5.0 Chrome/58.0 Safari/537"`,
		`not a valid log line at all`,
		`192.168.1.5 - - [10/Oct/2023:13:55:37 -0700] "GET /?cmd=rm HTTP/1.0" 200 0 "-" "-"`,
	}
	for _, l := range lines {
		in <- event.Raw{Line: l, IngestedAt: time.Now()}
	}
	close(in)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		pool.Run(ctx, in, out)
		close(done)
	}()

	var got []event.Event
	for e := range out {
		got = append(got, e)
	}
	<-done

	if len(got) != 2 {
		t.Fatalf("expected 2 parsed events (invalid line dropped), got %d", len(got))
	}

	var sawPrivateChrome, sawSuspicious bool
	for _, e := range got {
		if e.IPClass == event.IPClassPrivate && e.Browser == "Chrome" {
			sawPrivateChrome = true
		}
		if e.Suspicious {
			sawSuspicious = true
		}
	}
	if !sawPrivateChrome {
		t.Error("expected one event classified private/Chrome")
	}
	if !sawSuspicious {
		t.Error("expected the cmd= line to be flagged suspicious")
	}
}

func TestParserPoolStopsOnContextCancel(t *testing.T) {
	pool := &ParserPool{Workers: 2}

	in := make(chan event.Raw)
	out := make(chan event.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx, in, out)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("parser pool did not stop after context cancellation")
	}
}

func TestParserPoolClosesOutputWhenInputCloses(t *testing.T) {
	pool := &ParserPool{Workers: 3}

	in := make(chan event.Raw)
	out := make(chan event.Event)
	close(in)

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background(), in, out)
		close(done)
	}()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected out to be closed with no events")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for output channel to close")
	}
	<-done
}
