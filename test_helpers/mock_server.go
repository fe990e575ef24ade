package test_helpers

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jamesprial/xkcdbot/pkg/types"
	"github.com/jamesprial/xkcdbot/test_generators"
)

// XKCDPrefix is the path under which the mock server serves comic pages.
const XKCDPrefix = "/xkcd/"

// MockServer provides a configurable mock API server for testing
type MockServer struct {
	server *httptest.Server

	mu          sync.Mutex
	routes      map[string]RouteFunc
	defaultResp *MockResponse
	headers     map[string]string
	requestLog  []RequestEntry
	callCount   map[string]int
}

// RequestEntry logs incoming requests for debugging
type RequestEntry struct {
	Method       string
	Path         string
	Query        url.Values
	Form         url.Values
	Headers      http.Header
	Timestamp    time.Time
	ResponseCode int
}

// MockResponse defines a mock API response
type MockResponse struct {
	Status  int
	Body    string
	Headers map[string]string
}

// RouteFunc answers a request to one path.
type RouteFunc func(req *RequestEntry) *MockResponse

// NewMockServer creates a new mock server instance. Unknown paths answer 404.
func NewMockServer() *MockServer {
	ms := &MockServer{
		routes:    make(map[string]RouteFunc),
		headers:   make(map[string]string),
		callCount: make(map[string]int),
		defaultResp: &MockResponse{
			Status: http.StatusNotFound,
			Body:   `{"message": "Not Found", "error": 404}`,
		},
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.serveHTTP))
	return ms
}

// URL returns the base URL of the mock server
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse configures a static response for a specific path
func (ms *MockServer) SetResponse(path string, response *MockResponse) {
	ms.SetRoute(path, func(*RequestEntry) *MockResponse { return response })
}

// SetRoute configures a dynamic response for a specific path
func (ms *MockServer) SetRoute(path string, route RouteFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.routes[path] = route
}

// SetDefaultResponse configures the response for unknown paths
func (ms *MockServer) SetDefaultResponse(response *MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.defaultResp = response
}

// SetHeader adds a header to every response
func (ms *MockServer) SetHeader(key, value string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.headers[key] = value
}

// GetRequestLog returns the request log
func (ms *MockServer) GetRequestLog() []RequestEntry {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]RequestEntry{}, ms.requestLog...)
}

// GetCallCount returns the call count for a path
func (ms *MockServer) GetCallCount(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.callCount[path]
}

// ClearLog clears the request log
func (ms *MockServer) ClearLog() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.requestLog = ms.requestLog[:0]
	ms.callCount = make(map[string]int)
}

// AssertRequestCount asserts that a specific number of requests were made to a path
func (ms *MockServer) AssertRequestCount(path string, expectedCount int) error {
	actualCount := ms.GetCallCount(path)
	if actualCount != expectedCount {
		return fmt.Errorf("expected %d requests to %s, got %d", expectedCount, path, actualCount)
	}
	return nil
}

// GetLastRequest returns the last request made to a specific path
func (ms *MockServer) GetLastRequest(path string) (*RequestEntry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i := len(ms.requestLog) - 1; i >= 0; i-- {
		if ms.requestLog[i].Path == path {
			entry := ms.requestLog[i]
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("no requests found for path: %s", path)
}

func (ms *MockServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	entry := RequestEntry{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Headers:   r.Header.Clone(),
		Timestamp: time.Now(),
	}
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		entry.Form, _ = url.ParseQuery(string(body))
	}

	ms.mu.Lock()
	route, ok := ms.routes[r.URL.Path]
	defaultResp := ms.defaultResp
	headers := make(map[string]string, len(ms.headers))
	for k, v := range ms.headers {
		headers[k] = v
	}
	ms.callCount[r.URL.Path]++
	ms.mu.Unlock()

	// Routes run outside the lock so they can use the server's accessors.
	response := defaultResp
	if ok {
		response = route(&entry)
	}

	// Logged before writing so the entry is visible once the client returns.
	entry.ResponseCode = response.Status
	ms.mu.Lock()
	ms.requestLog = append(ms.requestLog, entry)
	ms.mu.Unlock()

	for key, value := range headers {
		w.Header().Set(key, value)
	}
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(response.Status)
	_, _ = w.Write([]byte(response.Body))
}

// PostedReply is a reply received on api/comment.
type PostedReply struct {
	ReplyID string
	ThingID string
	Text    string
}

// RedditMockServer simulates the Reddit endpoints the bot uses plus xkcd
// comic pages under XKCDPrefix.
type RedditMockServer struct {
	*MockServer

	mu       sync.Mutex
	threads  map[string]*mockThread
	more     map[string]types.Node
	replies  []PostedReply
	rejectAs string
}

type mockThread struct {
	gen   *test_generators.ThreadGenerator
	nodes []types.Node
}

// NewRedditMockServer creates a mock server pre-configured for Reddit API responses
func NewRedditMockServer() *RedditMockServer {
	rms := &RedditMockServer{
		MockServer: NewMockServer(),
		threads:    make(map[string]*mockThread),
		more:       make(map[string]types.Node),
	}
	rms.setupDefaultResponses()
	return rms
}

// setupDefaultResponses configures the token, morechildren and comment endpoints
func (rms *RedditMockServer) setupDefaultResponses() {
	rms.SetResponse("/api/v1/access_token", &MockResponse{
		Status: http.StatusOK,
		Body:   `{"access_token":"mock_token","token_type":"bearer","expires_in":3600,"scope":"*"}`,
	})
	rms.SetupRateLimit(600, 0, 600)

	rms.SetRoute("/api/morechildren.json", func(req *RequestEntry) *MockResponse {
		rms.mu.Lock()
		defer rms.mu.Unlock()
		var nodes []types.Node
		for _, id := range strings.Split(req.Query.Get("children"), ",") {
			if n, ok := rms.more[id]; ok {
				nodes = append(nodes, n)
			}
		}
		return &MockResponse{Status: http.StatusOK, Body: test_generators.MoreChildrenResponse(nodes)}
	})

	rms.SetRoute("/api/comment", func(req *RequestEntry) *MockResponse {
		rms.mu.Lock()
		defer rms.mu.Unlock()
		if rms.rejectAs != "" {
			return &MockResponse{
				Status: http.StatusOK,
				Body:   test_generators.ErrorResponse(rms.rejectAs, "rejected by mock", "parent"),
			}
		}
		reply := PostedReply{
			ReplyID: "reply" + strconv.Itoa(len(rms.replies)+1),
			ThingID: req.Form.Get("thing_id"),
			Text:    req.Form.Get("text"),
		}
		rms.replies = append(rms.replies, reply)
		return &MockResponse{
			Status: http.StatusOK,
			Body:   test_generators.CommentReplyResponse(reply.ReplyID, reply.ThingID),
		}
	})
}

// SetupRateLimit sets the X-Ratelimit-* headers sent with every response
func (rms *RedditMockServer) SetupRateLimit(remaining, used, resetSeconds int) {
	rms.SetHeader("X-Ratelimit-Remaining", strconv.Itoa(remaining))
	rms.SetHeader("X-Ratelimit-Used", strconv.Itoa(used))
	rms.SetHeader("X-Ratelimit-Reset", strconv.Itoa(resetSeconds))
}

// SetupError makes every unknown path answer statusCode
func (rms *RedditMockServer) SetupError(statusCode int, message string) {
	rms.SetDefaultResponse(&MockResponse{
		Status: statusCode,
		Body:   fmt.Sprintf(`{"message": %q, "error": %d}`, message, statusCode),
	})
}

// SetupThread serves a thread's top-level and per-branch comment listings.
func (rms *RedditMockServer) SetupThread(gen *test_generators.ThreadGenerator, subreddit, threadID string, nodes []types.Node) {
	rms.mu.Lock()
	rms.threads[threadID] = &mockThread{gen: gen, nodes: nodes}
	rms.mu.Unlock()

	rms.SetRoute(fmt.Sprintf("/r/%s/comments/%s.json", subreddit, threadID), func(req *RequestEntry) *MockResponse {
		rms.mu.Lock()
		thread := rms.threads[threadID]
		rms.mu.Unlock()

		cid := req.Query.Get("comment")
		if cid == "" {
			return &MockResponse{Status: http.StatusOK, Body: thread.gen.TopLevelResponse(thread.nodes)}
		}
		for _, n := range thread.nodes {
			if n.Comment != nil && n.Comment.ID == cid {
				return &MockResponse{Status: http.StatusOK, Body: thread.gen.CommentsResponse([]types.Node{n})}
			}
		}
		return &MockResponse{Status: http.StatusOK, Body: thread.gen.CommentsResponse(nil)}
	})
}

// SetupMoreChildren makes api/morechildren resolve id to node.
func (rms *RedditMockServer) SetupMoreChildren(id string, node types.Node) {
	rms.mu.Lock()
	defer rms.mu.Unlock()
	rms.more[id] = node
}

// SetupHot serves a subreddit's hot listing.
func (rms *RedditMockServer) SetupHot(subreddit string, posts []types.Post) {
	rms.SetResponse("/r/"+subreddit+"/hot.json", &MockResponse{
		Status: http.StatusOK,
		Body:   test_generators.HotResponse(posts),
	})
}

// SetupComic serves an xkcd comic page carrying titleText.
func (rms *RedditMockServer) SetupComic(id, titleText string) {
	page := fmt.Sprintf(`<!DOCTYPE html><html><body>
<div id="ctitle">Comic %[1]s</div>
<div id="comic"><img src="//imgs.xkcd.com/comics/%[1]s.png" title="%[2]s" alt="Comic %[1]s"/></div>
</body></html>`, id, html.EscapeString(titleText))

	rms.SetResponse(XKCDPrefix+id+"/", &MockResponse{
		Status:  http.StatusOK,
		Body:    page,
		Headers: map[string]string{"Content-Type": "text/html; charset=utf-8"},
	})
}

// RejectReplies makes api/comment answer with a json.errors entry of code.
// An empty code restores normal behavior.
func (rms *RedditMockServer) RejectReplies(code string) {
	rms.mu.Lock()
	defer rms.mu.Unlock()
	rms.rejectAs = code
}

// Replies returns every reply posted so far.
func (rms *RedditMockServer) Replies() []PostedReply {
	rms.mu.Lock()
	defer rms.mu.Unlock()
	return append([]PostedReply(nil), rms.replies...)
}

// XKCDURL returns the base URL of the comic pages.
func (rms *RedditMockServer) XKCDURL() string {
	return rms.URL() + XKCDPrefix
}
