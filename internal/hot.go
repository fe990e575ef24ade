package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jamesprial/xkcdbot/pkg/types"
)

// DefaultHotLimit is used when a source does not set a limit.
const DefaultHotLimit = 25

// HotThreads returns up to limit threads from a subreddit's hot listing.
// Stickied posts are kept; Reddit counts them against the limit.
func HotThreads(ctx context.Context, exec Executor, subreddit string, limit int) ([]*types.Post, error) {
	if err := NewValidator().ValidateSubredditName(subreddit); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHotLimit
	}
	limit = min(limit, maxPaginationLimit)

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	resp, err := exec.Execute(ctx, &Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("r/%s/hot.json", subreddit),
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	posts, err := NewParser().ParsePosts(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}
