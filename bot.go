package xkcdbot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesprial/xkcdbot/internal"
	"github.com/jamesprial/xkcdbot/internal/ledger"
	"github.com/jamesprial/xkcdbot/internal/xkcd"
	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
)

const (
	// DefaultBaseURL is the default Reddit API base URL
	DefaultBaseURL = "https://oauth.reddit.com/"
	// DefaultAuthURL is the default Reddit OAuth base URL
	DefaultAuthURL = "https://www.reddit.com/"
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval separates passes of Run.
	DefaultPollInterval = 5 * time.Minute
)

// Config holds everything needed to build a Bot.
//
// The bot authenticates with the password grant, so Username, Password,
// ClientID and ClientSecret are all required.
type Config struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string

	// UserAgent identifies the bot to Reddit, e.g. "script:xkcdbot:v1.0 (by /u/you)".
	UserAgent string

	// BaseURL and AuthURL default to DefaultBaseURL and DefaultAuthURL.
	BaseURL string
	AuthURL string

	// XKCDBaseURL defaults to https://xkcd.com/.
	XKCDBaseURL string

	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client

	// RequestsPerMinute caps steady-state throughput on top of the budget
	// Reddit reports. Zero uses the executor default.
	RequestsPerMinute float64

	// SafetyMargin is added to every budget wait. Zero uses one second.
	SafetyMargin time.Duration

	// Denylist authors are never answered. Nil uses the built-in list.
	Denylist []string

	// DryRun logs replies instead of posting them.
	DryRun bool

	// LedgerPath is the SQLite file holding answered comment ids.
	LedgerPath string

	// Logger for structured diagnostics. Optional.
	Logger *slog.Logger
}

// Bot crawls Reddit threads and answers comments that link an xkcd comic.
// It is not safe for concurrent use: threads are crawled one at a time.
type Bot struct {
	config     *Config
	sessions   *internal.SessionManager
	executor   *internal.Client
	ledger     *ledger.Store
	crawler    *internal.Crawler
	validator  *internal.Validator
	connection *internal.ConnectionManager
	logger     *slog.Logger
}

// NewBot validates config, opens the ledger and wires the components. No
// network call is made until Connect or the first crawl.
func NewBot(ctx context.Context, config *Config) (*Bot, error) {
	if config == nil {
		return nil, &pkgerrs.ConfigError{Message: "config cannot be nil"}
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = internal.DefaultSafetyMargin
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	auth, err := internal.NewAuthenticator(
		cfg.HTTPClient,
		cfg.Username,
		cfg.Password,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.UserAgent,
		cfg.AuthURL,
		"",
	)
	if err != nil {
		return nil, err
	}

	clock := internal.SystemClock{}
	sessions := internal.NewSessionManager(auth, clock, logger)
	budget := internal.NewBudget(clock, cfg.SafetyMargin, logger)

	executor, err := internal.NewClient(
		cfg.HTTPClient,
		sessions,
		budget,
		cfg.BaseURL,
		cfg.UserAgent,
		&internal.RateLimitConfig{RequestsPerMinute: cfg.RequestsPerMinute},
		clock,
		logger,
	)
	if err != nil {
		return nil, err
	}

	comics, err := xkcd.NewClient(cfg.HTTPClient, cfg.XKCDBaseURL, cfg.UserAgent, logger)
	if err != nil {
		return nil, &pkgerrs.ConfigError{Field: "xkcd.base_url", Message: err.Error()}
	}

	store, err := ledger.Open(ctx, cfg.LedgerPath, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := internal.NewDispatcher(executor, comics, store, internal.DispatcherConfig{
		Denylist: cfg.Denylist,
		Username: cfg.Username,
		DryRun:   cfg.DryRun,
	}, clock, logger)

	return &Bot{
		config:     &cfg,
		sessions:   sessions,
		executor:   executor,
		ledger:     store,
		crawler:    internal.NewCrawler(executor, dispatcher, logger),
		validator:  internal.NewValidator(),
		connection: internal.NewConnectionManager(),
		logger:     logger,
	}, nil
}

func validateConfig(config *Config) error {
	required := []struct {
		field string
		value string
	}{
		{"client_id", config.ClientID},
		{"client_secret", config.ClientSecret},
		{"username", config.Username},
		{"password", config.Password},
		{"ledger_path", config.LedgerPath},
	}
	for _, r := range required {
		if r.value == "" {
			return &pkgerrs.ConfigError{Field: r.field, Message: "is required"}
		}
	}
	return internal.NewValidator().ValidateUserAgent(config.UserAgent)
}

// ComposeReply renders the reply posted for a comic.
func ComposeReply(comicID, titleText string) string {
	return internal.ComposeReply(comicID, titleText)
}

// Connect performs the first credential exchange. It is safe to call
// repeatedly; once it succeeds later calls return immediately. Crawl,
// HotThreads and Run call it themselves.
func (b *Bot) Connect(ctx context.Context) error {
	return b.connection.Connect(ctx, func(ctx context.Context) error {
		_, err := b.sessions.Acquire(ctx)
		return err
	})
}

// Close releases the ledger.
func (b *Bot) Close() error {
	return b.ledger.Close()
}

// Replied returns the number of comments recorded as answered.
func (b *Bot) Replied() int {
	return b.ledger.Len()
}

// Crawl visits every comment of one thread and answers those that link a
// comic. threadID may carry the "t3_" prefix.
func (b *Bot) Crawl(ctx context.Context, subreddit, threadID string) error {
	if err := b.validator.ValidateSubredditName(subreddit); err != nil {
		return err
	}
	if err := b.validator.ValidateThreadID(threadID); err != nil {
		return err
	}
	if err := b.Connect(ctx); err != nil {
		return err
	}
	return b.crawler.Crawl(ctx, subreddit, strings.TrimPrefix(threadID, types.KindLink+"_"))
}

// HotThreads returns up to limit threads from a subreddit's hot listing.
func (b *Bot) HotThreads(ctx context.Context, subreddit string, limit int) ([]*types.Post, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return internal.HotThreads(ctx, b.executor, subreddit, limit)
}

// RunOnce crawls the hot threads of every source once. Failures of a single
// hot list or thread are logged and counted; only session exhaustion and
// cancellation end the pass early.
func (b *Bot) RunOnce(ctx context.Context, sources []types.Source) (*PassSummary, error) {
	summary := &PassSummary{RunID: uuid.NewString()}
	logger := b.logger.With("run_id", summary.RunID)
	before := b.ledger.Len()
	started := time.Now()

	defer func() {
		summary.Replies = b.ledger.Len() - before
		summary.Duration = time.Since(started)
	}()

	if err := b.Connect(ctx); err != nil {
		return summary, err
	}

	for _, source := range sources {
		posts, err := b.HotThreads(ctx, source.Name, source.Limit)
		if err != nil {
			if stop := b.stop(ctx, err); stop != nil {
				return summary, stop
			}
			logger.Warn("skipping source", "subreddit", source.Name, "error", err)
			summary.Failed++
			continue
		}

		for _, post := range posts {
			err := b.Crawl(ctx, source.Name, post.ID)
			if err == nil {
				summary.Threads++
				continue
			}
			if stop := b.stop(ctx, err); stop != nil {
				return summary, stop
			}
			level := slog.LevelWarn
			if pkgerrs.IsFatal(err) {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "thread abandoned", "subreddit", source.Name, "thread", post.ID, "error", err)
			summary.Failed++
		}
	}

	logger.Info("pass complete",
		"threads", summary.Threads,
		"failed", summary.Failed,
		"replies", b.ledger.Len()-before,
	)
	return summary, nil
}

// stop returns the error that must end a pass, or nil to continue.
func (b *Bot) stop(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, pkgerrs.ErrSessionExhausted) {
		return err
	}
	return nil
}

// Run repeats RunOnce every pollInterval until ctx is done or the session
// cannot be renewed. It always returns a non-nil error.
func (b *Bot) Run(ctx context.Context, sources []types.Source, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	for {
		if _, err := b.RunOnce(ctx, sources); err != nil {
			return err
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
