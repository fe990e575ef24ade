package internal

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
)

const (
	// MaxMoreChildren is the largest batch api/morechildren.json accepts.
	MaxMoreChildren = 100

	moreChildrenPath = "api/morechildren.json"
)

// MoreResolver expands continuation markers into comments.
type MoreResolver struct {
	exec      Executor
	parser    *Parser
	validator *Validator
	handler   CommentHandler
	logger    *slog.Logger
}

// NewMoreResolver returns a resolver that hands every expanded comment to handler.
func NewMoreResolver(exec Executor, handler CommentHandler, logger *slog.Logger) *MoreResolver {
	return &MoreResolver{
		exec:      exec,
		parser:    NewParser(),
		validator: NewValidator(),
		handler:   handler,
		logger:    orDiscard(logger),
	}
}

// Drain resolves pending continuation ids for a thread in batches of at most
// MaxMoreChildren. Returned comments are handed to the handler without
// descending into their replies; returned markers are queued again. An id is
// requested at most once per call.
func (r *MoreResolver) Drain(ctx context.Context, threadID string, pending []string) error {
	queue := append([]string(nil), pending...)
	requested := make(map[string]struct{}, len(queue))

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := min(len(queue), MaxMoreChildren)
		batch := make([]string, 0, n)
		for _, id := range queue[:n] {
			if _, seen := requested[id]; seen {
				continue
			}
			requested[id] = struct{}{}
			batch = append(batch, id)
		}
		queue = queue[n:]
		if len(batch) == 0 {
			continue
		}

		nodes, err := r.fetch(ctx, threadID, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if pkgerrs.IsFatal(err) {
				return err
			}
			r.logger.Warn("skipping continuation batch", "thread", threadID, "ids", len(batch), "error", err)
			continue
		}

		for _, node := range nodes {
			switch {
			case node.Comment != nil:
				if err := r.handler.Consider(ctx, node.Comment); err != nil {
					return err
				}
			case node.More != nil:
				queue = append(queue, node.More.Children...)
			}
		}
	}
	return nil
}

func (r *MoreResolver) fetch(ctx context.Context, threadID string, batch []string) ([]types.Node, error) {
	if err := r.validator.ValidateCommentIDs(batch); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("api_type", "json")
	query.Set("link_id", types.ThreadFullname(threadID))
	query.Set("children", strings.Join(batch, ","))

	resp, err := r.exec.Execute(ctx, &Request{
		Method: http.MethodGet,
		Path:   moreChildrenPath,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved continuation batch", "thread", threadID, "ids", len(batch))
	return r.parser.ParseMoreChildren(resp.StatusCode, resp.Body)
}
