package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jamesprial/xkcdbot/internal/xkcd"
	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
	"github.com/jamesprial/xkcdbot/pkg/validation"
)

const (
	// DefaultResolveRetries bounds retries of an unavailable comic page.
	DefaultResolveRetries = 10

	commentPath = "api/comment"

	explainBaseURL = "https://www.explainxkcd.com/wiki/index.php/"
	replyFooter    = "^(Made for mobile users, to easily see xkcd comic's title text)"

	// dispatchAttempts is one dispatch plus one retry after a rejected session.
	dispatchAttempts = 2
)

// DefaultDenylist holds authors whose comments are never answered.
var DefaultDenylist = []string{"xkcd_bot", "AutoModerator"}

// CommentHandler is called for every comment discovered in a thread. A
// returned error is fatal for the thread.
type CommentHandler interface {
	Consider(ctx context.Context, comment *types.Comment) error
}

// ComicResolver looks up a comic's title text.
type ComicResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Ledger remembers which comments were already answered.
type Ledger interface {
	IsKnown(commentID string) bool
	Record(ctx context.Context, record types.ReplyRecord) error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Denylist authors are skipped, compared case-insensitively. Nil uses DefaultDenylist.
	Denylist []string
	// Username is the bot's own account; it is always denied.
	Username string
	// DryRun logs composed replies without posting or recording them.
	DryRun bool
	// ResolveRetries defaults to DefaultResolveRetries.
	ResolveRetries int
}

// Dispatcher posts at most one reply per matching comment.
type Dispatcher struct {
	exec     Executor
	parser   *Parser
	resolver ComicResolver
	ledger   Ledger
	clock    Clock
	logger   *slog.Logger

	denied         map[string]struct{}
	dryRun         bool
	resolveRetries int

	// posted holds comments replied to by this process, whether or not the
	// ledger accepted the record.
	mu     sync.Mutex
	posted map[string]struct{}
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(exec Executor, resolver ComicResolver, ledger Ledger, cfg DispatcherConfig, clock Clock, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = SystemClock{}
	}

	denylist := cfg.Denylist
	if denylist == nil {
		denylist = DefaultDenylist
	}
	denied := make(map[string]struct{}, len(denylist)+1)
	for _, name := range denylist {
		denied[strings.ToLower(name)] = struct{}{}
	}
	if cfg.Username != "" {
		denied[strings.ToLower(cfg.Username)] = struct{}{}
	}

	retries := cfg.ResolveRetries
	if retries <= 0 {
		retries = DefaultResolveRetries
	}

	return &Dispatcher{
		exec:           exec,
		parser:         NewParser(),
		resolver:       resolver,
		ledger:         ledger,
		clock:          clock,
		logger:         orDiscard(logger),
		denied:         denied,
		dryRun:         cfg.DryRun,
		resolveRetries: retries,
		posted:         make(map[string]struct{}),
	}
}

// ComposeReply renders the reply body for a comic.
func ComposeReply(comicID, titleText string) string {
	var b strings.Builder
	b.WriteString("Comic Alt/Title Text: ")
	b.WriteString(titleText)
	b.WriteString("\n\n[Explanation](")
	b.WriteString(explainBaseURL)
	b.WriteString(comicID)
	b.WriteString(")\n\n---\n")
	b.WriteString(replyFooter)
	return b.String()
}

// Consider replies to comment if it links a comic, has not been answered and
// was not written by a denied author. Only errors that must halt the thread
// are returned; everything else is logged and the comment abandoned.
func (d *Dispatcher) Consider(ctx context.Context, comment *types.Comment) error {
	if comment == nil {
		return nil
	}

	for attempt := 1; attempt <= dispatchAttempts; attempt++ {
		err := d.dispatch(ctx, comment)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if pkgerrs.IsFatal(err) {
			return err
		}
		if pkgerrs.IsAuthFailure(err) && attempt < dispatchAttempts {
			d.logger.Warn("reply rejected as unauthorized, retrying dispatch", "comment", comment.ID)
			continue
		}
		d.logger.Warn("abandoning comment", "comment", comment.ID, "error", err)
		return nil
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, comment *types.Comment) error {
	comicID, ok := MatchComicID(comment.Body)
	if !ok {
		return nil
	}
	logger := d.logger.With("comment", comment.ID, "comic", comicID)

	if d.ledger.IsKnown(comment.ID) || d.replied(comment.ID) {
		logger.Debug("already replied")
		return nil
	}
	if _, denied := d.denied[strings.ToLower(comment.Author)]; denied {
		logger.Debug("author denied", "author", comment.Author)
		return nil
	}

	title, err := d.resolveTitle(ctx, comicID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("could not resolve comic", "error", err)
		return nil
	}

	body := ComposeReply(comicID, title)
	if d.dryRun {
		logger.Info("dry run, reply not posted", "reply", body)
		return nil
	}

	replyID, err := d.post(ctx, comment, body)
	if err != nil {
		return err
	}
	d.markReplied(comment.ID)

	record := types.ReplyRecord{
		ParentCommentID: comment.ID,
		ReplyID:         replyID,
		Subreddit:       comment.Subreddit,
		ResourceID:      comicID,
		CreatedAt:       d.clock.Now().UTC(),
	}
	if err := d.ledger.Record(ctx, record); err != nil {
		var ledgerErr *pkgerrs.LedgerError
		if !errors.As(err, &ledgerErr) {
			err = &pkgerrs.LedgerError{Operation: "record", CommentID: comment.ID, Err: err}
		}
		logger.Error("reply posted but not recorded", "reply", replyID, "error", err)
		return err
	}

	logger.Info("replied", "reply", replyID)
	return nil
}

func (d *Dispatcher) replied(commentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.posted[commentID]
	return ok
}

func (d *Dispatcher) markReplied(commentID string) {
	d.mu.Lock()
	d.posted[commentID] = struct{}{}
	d.mu.Unlock()
}

// resolveTitle retries unavailable comic pages with a delay of
// 2^(retry/2) seconds. A missing comic is not retried.
func (d *Dispatcher) resolveTitle(ctx context.Context, comicID string) (string, error) {
	var lastErr error
	for retry := 0; retry <= d.resolveRetries; retry++ {
		if retry > 0 {
			delay := Backoff(retry / 2)
			d.logger.Debug("comic unavailable, retrying", "comic", comicID, "attempt", retry, "delay", delay)
			if err := d.clock.Sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		title, err := d.resolver.Resolve(ctx, comicID)
		if err == nil {
			return title, nil
		}
		if !errors.Is(err, xkcd.ErrUnavailable) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("comic %s still unavailable after %d retries: %w", comicID, d.resolveRetries, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, comment *types.Comment, body string) (string, error) {
	thingID, err := validation.ReplyTarget(comment)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", thingID)
	form.Set("text", body)

	resp, err := d.exec.Execute(ctx, &Request{
		Method:     http.MethodPost,
		Path:       commentPath,
		Form:       form,
		MaxRetries: 1,
	})
	if err != nil {
		return "", err
	}

	replyID, err := d.parser.ParseCommentReply(resp.StatusCode, resp.Body)
	var parseErr *pkgerrs.ParseError
	if errors.As(err, &parseErr) {
		// Reddit answered 2xx, so the reply exists even if the body is unreadable.
		d.logger.Warn("reply accepted with unreadable response", "comment", comment.ID, "status", resp.StatusCode, "error", err)
		return "", nil
	}
	return replyID, err
}
