package test_helpers

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	xkcdbot "github.com/jamesprial/xkcdbot"
)

// TestBot pairs a Bot with the mock server it talks to.
type TestBot struct {
	*xkcdbot.Bot
	Server *RedditMockServer
	Config xkcdbot.Config
}

// TestBotOption adjusts the bot configuration before it is built.
type TestBotOption func(*xkcdbot.Config)

// WithDryRun enables dry-run mode.
func WithDryRun() TestBotOption {
	return func(c *xkcdbot.Config) { c.DryRun = true }
}

// WithDenylist replaces the default denylist.
func WithDenylist(names ...string) TestBotOption {
	return func(c *xkcdbot.Config) { c.Denylist = names }
}

// WithLedgerPath reuses an existing ledger file.
func WithLedgerPath(path string) TestBotOption {
	return func(c *xkcdbot.Config) { c.LedgerPath = path }
}

// NewTestBot starts a RedditMockServer and a Bot wired to it, with the
// ledger in a temporary directory. Both are closed when the test ends.
func NewTestBot(tb testing.TB, opts ...TestBotOption) *TestBot {
	tb.Helper()
	return NewTestBotWithServer(tb, NewRedditMockServer(), opts...)
}

// NewTestBotWithServer builds a Bot against an existing server, so a test can
// simulate a restart against the same state.
func NewTestBotWithServer(tb testing.TB, server *RedditMockServer, opts ...TestBotOption) *TestBot {
	tb.Helper()

	config := xkcdbot.Config{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		Username:     "test_bot",
		Password:     "test_pass",
		UserAgent:    "test:xkcdbot:v0 (by /u/tester)",
		BaseURL:      server.URL(),
		AuthURL:      server.URL(),
		XKCDBaseURL:  server.XKCDURL(),
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		// High enough that the steady-state limiter never delays a test.
		RequestsPerMinute: 60000,
		LedgerPath:        filepath.Join(tb.TempDir(), "ledger.db"),
	}
	for _, opt := range opts {
		opt(&config)
	}

	bot, err := xkcdbot.NewBot(context.Background(), &config)
	if err != nil {
		tb.Fatalf("failed to create bot: %v", err)
	}
	tb.Cleanup(func() {
		bot.Close()
		server.Close()
	})

	return &TestBot{Bot: bot, Server: server, Config: config}
}
