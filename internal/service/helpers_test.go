package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/domain/session"
)

const waitTimeout = 2 * time.Second

// fakeClock is the part of the clockwork fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// recordedCall is one request seen by fakeDoer.
type recordedCall struct {
	at     time.Time
	header http.Header
	body   []byte
}

// fakeDoer answers webhook requests with a scripted list of status codes; the
// last status repeats.
type fakeDoer struct {
	clock    clockwork.Clock
	statuses []int

	mu     sync.Mutex
	calls  []recordedCall
	called chan struct{}
}

func newFakeDoer(clock clockwork.Clock, statuses ...int) *fakeDoer {
	return &fakeDoer{clock: clock, statuses: statuses, called: make(chan struct{}, 64)}
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)

	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, recordedCall{at: f.clock.Now(), header: req.Header.Clone(), body: body})
	status := http.StatusOK
	if len(f.statuses) > 0 {
		status = f.statuses[min(n, len(f.statuses)-1)]
	}
	f.mu.Unlock()

	f.called <- struct{}{}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (f *fakeDoer) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDoer) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for webhook call")
	}
}

// fakeTransport records pushed frames and can be made to fail.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	err    error
}

func (f *fakeTransport) Send(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) messages(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, fr := range f.frames {
		types = append(types, decodeType(t, fr))
	}
	return types
}

func (f *fakeTransport) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeTransport) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	return f.frames[len(f.frames)-1]
}

var _ session.Transport = (*fakeTransport)(nil)
