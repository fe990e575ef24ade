package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
)

// Crawler discovers every comment of a thread and hands each one to a
// CommentHandler in pre-order.
type Crawler struct {
	exec     Executor
	parser   *Parser
	handler  CommentHandler
	resolver *MoreResolver
	logger   *slog.Logger
}

// NewCrawler returns a crawler. Continuation markers are expanded through a
// MoreResolver sharing the same executor and handler.
func NewCrawler(exec Executor, handler CommentHandler, logger *slog.Logger) *Crawler {
	logger = orDiscard(logger)
	return &Crawler{
		exec:     exec,
		parser:   NewParser(),
		handler:  handler,
		resolver: NewMoreResolver(exec, handler, logger),
		logger:   logger,
	}
}

// Crawl visits every comment of threadID. Top-level comments are fetched
// first; each is then fetched with its subtree. Continuation ids collected
// along the way are drained once at least MaxMoreChildren are pending after a
// branch, and fully before Crawl returns.
//
// A failed subtree fetch is logged and skipped. Errors the handler returns,
// session exhaustion and cancellation stop the crawl.
func (c *Crawler) Crawl(ctx context.Context, subreddit, threadID string) error {
	logger := c.logger.With("thread", threadID, "subreddit", subreddit)

	topLevel, pending, err := c.topLevel(ctx, subreddit, threadID)
	if err != nil {
		return fmt.Errorf("fetching top-level comments of %s: %w", threadID, err)
	}
	logger.Debug("top-level comments fetched", "comments", len(topLevel), "pending", len(pending))

	for _, commentID := range topLevel {
		if err := ctx.Err(); err != nil {
			return err
		}

		pending, err = c.branch(ctx, subreddit, threadID, commentID, pending)
		if err != nil {
			return err
		}

		if len(pending) >= MaxMoreChildren {
			if err := c.resolver.Drain(ctx, threadID, pending); err != nil {
				return err
			}
			pending = nil
		}
	}

	if err := c.resolver.Drain(ctx, threadID, pending); err != nil {
		return err
	}
	logger.Debug("thread crawled")
	return nil
}

// topLevel returns the thread's top-level comment ids in API order along with
// the ids of any top-level continuation markers.
func (c *Crawler) topLevel(ctx context.Context, subreddit, threadID string) ([]string, []string, error) {
	query := url.Values{}
	query.Set("depth", "1")
	query.Set("showedits", "true")
	query.Set("showmore", "true")
	query.Set("sort", "best")
	query.Set("threaded", "false")

	nodes, err := c.fetch(ctx, subreddit, threadID, query)
	if err != nil {
		return nil, nil, err
	}

	var ids, pending []string
	for _, node := range nodes {
		switch {
		case node.Comment != nil:
			ids = append(ids, node.Comment.ID)
		case node.More != nil:
			pending = c.queueMore(pending, node.More)
		}
	}
	return ids, pending, nil
}

// branch fetches one top-level comment with its subtree and visits it,
// returning the extended work list.
func (c *Crawler) branch(ctx context.Context, subreddit, threadID, commentID string, pending []string) ([]string, error) {
	query := url.Values{}
	query.Set("comment", commentID)
	query.Set("showedits", "true")
	query.Set("showmore", "true")
	query.Set("sort", "best")
	query.Set("threaded", "true")

	nodes, err := c.fetch(ctx, subreddit, threadID, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pending, ctxErr
		}
		if pkgerrs.IsFatal(err) {
			return pending, err
		}
		c.logger.Warn("skipping branch", "thread", threadID, "comment", commentID, "error", err)
		return pending, nil
	}

	for _, node := range nodes {
		if node.Comment != nil {
			return c.visit(ctx, node.Comment, pending)
		}
	}
	c.logger.Debug("branch listing empty", "thread", threadID, "comment", commentID)
	return pending, nil
}

// visit hands comment to the handler, then walks its children in order.
func (c *Crawler) visit(ctx context.Context, comment *types.Comment, pending []string) ([]string, error) {
	if err := c.handler.Consider(ctx, comment); err != nil {
		return pending, err
	}

	for _, child := range comment.Children {
		switch {
		case child.Comment != nil:
			var err error
			pending, err = c.visit(ctx, child.Comment, pending)
			if err != nil {
				return pending, err
			}
		case child.More != nil:
			pending = c.queueMore(pending, child.More)
		}
	}
	return pending, nil
}

// queueMore appends the marker's ids to pending. A marker without ids is
// Reddit's "continue this thread" link below the inline depth limit; its
// subtree is not reachable through morechildren.
func (c *Crawler) queueMore(pending []string, more *types.MoreData) []string {
	if len(more.Children) == 0 {
		c.logger.Debug("thread continues below inline depth, not followed", "parent", more.ParentID, "more", more.ID)
		return pending
	}
	return append(pending, more.Children...)
}

func (c *Crawler) fetch(ctx context.Context, subreddit, threadID string, query url.Values) ([]types.Node, error) {
	resp, err := c.exec.Execute(ctx, &Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("r/%s/comments/%s.json", subreddit, threadID),
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return c.parser.ParseThreadComments(resp.Body)
}
