// Package xkcd looks up comic title text on xkcd.com.
package xkcd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"
)

// DefaultBaseURL is the comic site.
const DefaultBaseURL = "https://xkcd.com/"

const defaultTimeout = 15 * time.Second

var (
	// ErrUnavailable reports a failure worth retrying: a transport error or a
	// server-side status.
	ErrUnavailable = errors.New("comic page unavailable")
	// ErrNotFound reports that the comic does not exist or carries no title text.
	ErrNotFound = errors.New("comic not found")
)

// Client fetches comic pages.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	userAgent string
	logger    *slog.Logger
}

// NewClient returns a client for baseURL. An empty baseURL uses DefaultBaseURL
// and a nil httpClient gets a 15s timeout.
func NewClient(httpClient *http.Client, baseURL, userAgent string, logger *slog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse xkcd base url: %w", err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	return &Client{http: httpClient, baseURL: parsed, userAgent: userAgent, logger: logger}, nil
}

// Resolve returns the title text of comic id.
func (c *Client) Resolve(ctx context.Context, id string) (string, error) {
	pageURL, err := c.baseURL.Parse(id + "/")
	if err != nil {
		return "", fmt.Errorf("%w: comic %s: %w", ErrNotFound, id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: comic %s: %w", ErrNotFound, id, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: comic %s: %w", ErrUnavailable, id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: comic %s: status %d", ErrUnavailable, id, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: comic %s: status %d", ErrNotFound, id, resp.StatusCode)
	}

	title, ok, err := extractTitle(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: comic %s: reading page: %w", ErrUnavailable, id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: comic %s has no title text", ErrNotFound, id)
	}

	c.logger.Debug("resolved comic", "comic", id)
	return title, nil
}

// extractTitle returns the title attribute of the first <img> inside
// <div id="comic">.
func extractTitle(r io.Reader) (string, bool, error) {
	tokenizer := xhtml.NewTokenizer(r)
	// depth counts open divs inside the comic container; 0 means outside.
	depth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case xhtml.ErrorToken:
			if err := tokenizer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", false, err
			}
			return "", false, nil

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			t := tokenizer.Token()
			switch t.Data {
			case "div":
				if tt == xhtml.SelfClosingTagToken {
					continue
				}
				if depth > 0 {
					depth++
				} else if attr(t, "id") == "comic" {
					depth = 1
				}
			case "img":
				if depth == 0 {
					continue
				}
				if title := attr(t, "title"); title != "" {
					return title, true, nil
				}
			}

		case xhtml.EndTagToken:
			if depth > 0 && tokenizer.Token().Data == "div" {
				depth--
				if depth == 0 {
					// Left the comic container without finding an image.
					return "", false, nil
				}
			}
		}
	}
}

func attr(t xhtml.Token, key string) string {
	for _, a := range t.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
