package internal

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jamesprial/xkcdbot/pkg/types"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// fakeClock advances instantly on Sleep and records every requested delay.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeTokenSource hands out numbered tokens and fails while failures > 0.
type fakeTokenSource struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (s *fakeTokenSource) Exchange(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return "", s.err
	}
	return "bearer token-" + strconv.Itoa(s.calls), nil
}

func (s *fakeTokenSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingHandler collects considered comment ids in order.
type recordingHandler struct {
	mu  sync.Mutex
	ids []string
	// failOn makes Consider return err for the given id.
	failOn string
	err    error
}

func (h *recordingHandler) Consider(ctx context.Context, comment *types.Comment) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, comment.ID)
	if comment.ID == h.failOn {
		return h.err
	}
	return nil
}

func (h *recordingHandler) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ids...)
}

// scriptedExecutor answers requests through a function and logs them.
type scriptedExecutor struct {
	mu       sync.Mutex
	requests []*Request
	respond  func(req *Request) (*Response, error)
}

func (e *scriptedExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	return e.respond(req)
}

func (e *scriptedExecutor) Requests() []*Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Request(nil), e.requests...)
}

func okResponse(body string) *Response {
	return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(body)}
}
