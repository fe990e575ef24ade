package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
)

const (
	defaultTokenEndpointPath = "api/v1/access_token"
	defaultTokenType         = "bearer"

	// DefaultRefreshAttempts bounds the credential exchange retries.
	DefaultRefreshAttempts = 5
)

// Session is an issued access credential. It is never mutated; a refresh
// replaces it.
type Session struct {
	AuthHeader string
	IssuedAt   time.Time
}

// Authenticator exchanges account credentials for an access token.
type Authenticator struct {
	client       *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	tokenURL     *url.URL
	formData     url.Values
}

// NewAuthenticator creates a password-grant authenticator. An empty tokenPath
// uses the default Reddit token endpoint.
func NewAuthenticator(httpClient *http.Client, username, password, clientID, clientSecret, userAgent, authURL, tokenPath string) (*Authenticator, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(authURL)
	if err != nil {
		return nil, &pkgerrs.AuthError{Message: "failed to parse auth URL", Err: err}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	if tokenPath == "" {
		tokenPath = defaultTokenEndpointPath
	}
	tokenURL, err := parsedURL.Parse(tokenPath)
	if err != nil {
		return nil, &pkgerrs.AuthError{Message: "failed to parse token endpoint path", Err: err}
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	return &Authenticator{
		client:       httpClient,
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		tokenURL:     tokenURL,
		formData:     form,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Exchange performs one credential exchange and returns the Authorization
// header value, e.g. "bearer abc123".
func (a *Authenticator) Exchange(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL.String(), strings.NewReader(a.formData.Encode()))
	if err != nil {
		return "", &pkgerrs.AuthError{Message: "failed to create token request", Err: err}
	}

	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &pkgerrs.AuthError{Message: "failed to execute token request", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &pkgerrs.AuthError{StatusCode: resp.StatusCode, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &pkgerrs.AuthError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(bodyBytes, &tokenResp); err != nil {
		return "", &pkgerrs.AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			Message:    "failed to unmarshal token response",
			Err:        err,
		}
	}

	if tokenResp.AccessToken == "" {
		return "", &pkgerrs.AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			Message:    "access token was empty in response",
		}
	}

	tokenType := tokenResp.TokenType
	if tokenType == "" {
		tokenType = defaultTokenType
	}
	return tokenType + " " + tokenResp.AccessToken, nil
}

// TokenSource performs a single credential exchange.
type TokenSource interface {
	Exchange(ctx context.Context) (string, error)
}

// SessionManager owns the current Session and replaces it on refresh.
type SessionManager struct {
	source      TokenSource
	clock       Clock
	logger      *slog.Logger
	maxAttempts int

	mu      sync.Mutex
	current *Session
}

// NewSessionManager wraps source with bounded, backed-off refreshes.
func NewSessionManager(source TokenSource, clock Clock, logger *slog.Logger) *SessionManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SessionManager{
		source:      source,
		clock:       clock,
		logger:      orDiscard(logger),
		maxAttempts: DefaultRefreshAttempts,
	}
}

// Acquire returns the current session, refreshing when none was issued yet.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current != nil {
		return current, nil
	}
	return m.Refresh(ctx)
}

// Refresh exchanges credentials for a new session. Failures are retried with
// exponential backoff; when every attempt fails the returned error wraps
// pkgerrs.ErrSessionExhausted.
func (m *SessionManager) Refresh(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt - 1)
			m.logger.Warn("token exchange failed, retrying", "attempt", attempt, "delay", delay, "error", lastErr)
			if err := m.clock.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		header, err := m.source.Exchange(ctx)
		if err == nil {
			session := &Session{AuthHeader: header, IssuedAt: m.clock.Now()}
			m.mu.Lock()
			m.current = session
			m.mu.Unlock()
			m.logger.Debug("session refreshed", "attempts", attempt+1)
			return session, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	m.logger.Error("token exchange retries exhausted", "attempts", m.maxAttempts, "error", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", pkgerrs.ErrSessionExhausted, m.maxAttempts, lastErr)
}
