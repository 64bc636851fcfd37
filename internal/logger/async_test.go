package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler keeps every record it is handed.
type captureHandler struct {
	mu    sync.Mutex
	recs  []slog.Record
	pause time.Duration
}

func (c *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (c *captureHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler signature
	time.Sleep(c.pause)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *captureHandler) WithGroup(string) slog.Handler      { return c }

func (c *captureHandler) snapshot() []slog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]slog.Record(nil), c.recs...)
}

func emit(ctx context.Context, h slog.Handler, msg string, n int) {
	for range n {
		_ = h.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0))
	}
}

func TestAsyncHandlerDeliversEverythingBeforeClose(t *testing.T) {
	tests := []struct {
		name      string
		buffer    int
		workers   int
		producers int
		each      int
	}{
		{"single record", 8, 1, 1, 1},
		{"burst drained on close", 1000, 2, 1, 200},
		{"concurrent producers", 10000, 4, 50, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureHandler{}
			ah := NewAsyncHandler(sink, tt.buffer, tt.workers)

			var wg sync.WaitGroup
			for range tt.producers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					emit(context.Background(), ah, "session registered", tt.each)
				}()
			}
			wg.Wait()
			ah.Close()

			if got, want := len(sink.snapshot()), tt.producers*tt.each; got != want {
				t.Fatalf("expected %d records, got %d", want, got)
			}
			if ah.DroppedCount() != 0 {
				t.Fatalf("expected no drops, got %d", ah.DroppedCount())
			}
		})
	}
}

func TestAsyncHandlerDropsWhenFullAndWarnsOnClose(t *testing.T) {
	sink := &captureHandler{pause: 5 * time.Millisecond}
	ah := NewAsyncHandler(sink, 1, 1)

	emit(context.Background(), ah, "webhook delivery failed", 40)
	ah.Close()
	ah.Close()

	if ah.DroppedCount() == 0 {
		t.Fatal("expected a full buffer to drop records")
	}
	recs := sink.snapshot()
	last := recs[len(recs)-1]
	if last.Message != "async logger dropped records" || last.Level != slog.LevelWarn {
		t.Fatalf("expected final drop warning, got %q at %s", last.Message, last.Level)
	}
}

func TestAsyncHandlerKeepsContextIDs(t *testing.T) {
	sink := &captureHandler{}
	ah := NewAsyncHandler(contextHandler{inner: sink}, 10, 1)

	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")
	emit(ctx, ah, "subscription ack", 1)
	ah.Close()

	recs := sink.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	got := map[string]string{}
	recs[0].Attrs(func(a slog.Attr) bool {
		got[a.Key] = a.Value.String()
		return true
	})
	if got["request_id"] != "req-1" || got["session_id"] != "sess-1" {
		t.Fatalf("expected request and session ids on async record, got %v", got)
	}
}
