package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	DefaultRequestsPerMinute = 60
	DefaultRateLimitBurst    = 10
	SecondsPerMinute         = 60.0

	// DefaultMaxRetries bounds transport-level attempts for reads.
	DefaultMaxRetries = 3

	maxLoggedBody = 512
)

// RateLimitConfig controls the steady-state throttle applied on top of the
// budget reported by the API.
type RateLimitConfig struct {
	// RequestsPerMinute caps steady-state throughput. Defaults to 60 if zero.
	RequestsPerMinute float64
	// Burst allows short spikes above the steady-state rate. Defaults to 10 if zero.
	Burst int
}

// Request describes one authenticated API call.
type Request struct {
	Method string
	// Path is resolved against the client's base URL.
	Path  string
	Query url.Values
	// Form, when set, is sent as an urlencoded body.
	Form   url.Values
	Header http.Header
	// MaxRetries is the number of transport attempts. Defaults to DefaultMaxRetries.
	MaxRetries int
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Executor issues authenticated API calls.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Client is the request executor: every call to the Reddit API goes through
// it so that the rate budget and session refresh are applied uniformly.
type Client struct {
	client    *http.Client
	BaseURL   *url.URL
	UserAgent string

	sessions *SessionManager
	budget   *Budget
	limiter  *rate.Limiter
	clock    Clock
	logger   *slog.Logger
}

// NewClient returns a request executor. If a nil httpClient is provided,
// http.DefaultClient will be used.
func NewClient(httpClient *http.Client, sessions *SessionManager, budget *Budget, baseURL, userAgent string, rateCfg *RateLimitConfig, clock Clock, logger *slog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clock == nil {
		clock = SystemClock{}
	}
	logger = orDiscard(logger)
	if budget == nil {
		budget = NewBudget(clock, DefaultSafetyMargin, logger)
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, &pkgerrs.ConfigError{Field: "base_url", Message: err.Error()}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	if rateCfg == nil {
		rateCfg = &RateLimitConfig{}
	}

	return &Client{
		client:    httpClient,
		BaseURL:   parsedURL,
		UserAgent: userAgent,
		sessions:  sessions,
		budget:    budget,
		limiter:   buildLimiter(*rateCfg),
		clock:     clock,
		logger:    logger,
	}, nil
}

// Budget exposes the shared rate budget.
func (c *Client) Budget() *Budget {
	return c.budget
}

// Execute issues req, waiting on the rate budget first. Transport failures
// are retried with exponential backoff. A 401 triggers one session refresh
// and exactly one re-issue; any other non-2xx status is returned as an
// *errors.APIError.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	refreshed := false
	for {
		resp, err := c.executeWithRetries(ctx, req, maxRetries)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				c.logger.Error("request rejected after session refresh",
					"method", req.Method, "path", req.Path, "status", resp.StatusCode, "body", truncate(resp.Body))
				return nil, &pkgerrs.AuthError{
					StatusCode: resp.StatusCode,
					Body:       string(resp.Body),
					Message:    "request rejected after session refresh",
				}
			}
			c.logger.Info("session rejected, refreshing", "method", req.Method, "path", req.Path)
			if _, err := c.sessions.Refresh(ctx); err != nil {
				return nil, err
			}
			refreshed = true

		default:
			c.logger.Warn("request failed",
				"method", req.Method, "path", req.Path, "status", resp.StatusCode, "body", truncate(resp.Body))
			return nil, &pkgerrs.APIError{
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
				Body:       string(resp.Body),
			}
		}
	}
}

// executeWithRetries performs up to maxRetries transport attempts. The delay
// before retry n is 2^(n-1) seconds. A request that cannot be built is not retried.
func (c *Client) executeWithRetries(ctx context.Context, req *Request, maxRetries int) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := c.do(ctx, req)
		if err == nil {
			return resp, nil
		}
		var cfgErr *pkgerrs.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		if pkgerrs.IsFatal(err) || ctx.Err() != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		delay := Backoff(attempt - 1)
		c.logger.Warn("transport failure, retrying",
			"method", req.Method, "path", req.Path, "attempt", attempt, "delay", delay, "error", err)
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	c.logger.Error("transport retries exhausted", "method", req.Method, "path", req.Path, "attempts", maxRetries, "error", lastErr)
	return nil, &pkgerrs.RequestError{
		Operation: req.Method,
		URL:       c.resolve(req.Path),
		Attempts:  maxRetries,
		Err:       lastErr,
	}
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.budget.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	session, err := c.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, req, session)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.budget.Update(resp.Header)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, req *Request, session *Session) (*http.Request, error) {
	u, err := c.BaseURL.Parse(req.Path)
	if err != nil {
		return nil, &pkgerrs.ConfigError{Field: "path", Message: err.Error()}
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, &pkgerrs.ConfigError{Field: "request", Message: err.Error()}
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Authorization", session.AuthHeader)
	httpReq.Header.Set("User-Agent", c.UserAgent)

	return httpReq, nil
}

func (c *Client) resolve(path string) string {
	u, err := c.BaseURL.Parse(path)
	if err != nil {
		return path
	}
	return u.String()
}

func buildLimiter(cfg RateLimitConfig) *rate.Limiter {
	requestsPerMinute := cfg.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}

	limitPerSecond := rate.Limit(requestsPerMinute / SecondsPerMinute)
	if limitPerSecond <= 0 {
		limitPerSecond = rate.Limit(1)
	}

	return rate.NewLimiter(limitPerSecond, burst)
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
