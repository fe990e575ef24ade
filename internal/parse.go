package internal

import (
	"encoding/json"
	"fmt"
	"strings"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
)

// Parser handles parsing of Reddit API responses
type Parser struct{}

// NewParser creates a new parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseListing extracts a ListingData from a Thing of kind "Listing".
func (p *Parser) ParseListing(thing *types.Thing) (*types.ListingData, error) {
	if thing == nil {
		return nil, fmt.Errorf("thing is nil")
	}
	if thing.Kind != types.KindListing {
		return nil, fmt.Errorf("expected Listing, got %s", thing.Kind)
	}

	var listing types.ListingData
	if err := json.Unmarshal(thing.Data, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse Listing data: %w", err)
	}
	return &listing, nil
}

// ParseLink extracts a Post from a Thing of kind "t3".
func (p *Parser) ParseLink(thing *types.Thing) (*types.Post, error) {
	if thing == nil {
		return nil, fmt.Errorf("thing is nil")
	}
	if thing.Kind != types.KindLink {
		return nil, fmt.Errorf("expected t3 (Link), got %s", thing.Kind)
	}

	var post types.Post
	if err := json.Unmarshal(thing.Data, &post); err != nil {
		return nil, fmt.Errorf("failed to parse Link data: %w", err)
	}
	return &post, nil
}

// ParseComment extracts a Comment from a Thing of kind "t1", including its
// inlined replies and continuation markers.
func (p *Parser) ParseComment(thing *types.Thing) (*types.Comment, error) {
	if thing == nil {
		return nil, fmt.Errorf("thing is nil")
	}
	if thing.Kind != types.KindComment {
		return nil, fmt.Errorf("expected t1 (Comment), got %s", thing.Kind)
	}

	var comment types.Comment
	if err := json.Unmarshal(thing.Data, &comment); err != nil {
		return nil, fmt.Errorf("failed to parse Comment data: %w", err)
	}

	// The replies field is either a Listing object or an empty string
	var rawData struct {
		Replies json.RawMessage `json:"replies"`
	}
	if err := json.Unmarshal(thing.Data, &rawData); err != nil {
		return nil, fmt.Errorf("failed to parse Comment replies: %w", err)
	}
	if hasReplies(rawData.Replies) {
		var repliesThing types.Thing
		if err := json.Unmarshal(rawData.Replies, &repliesThing); err != nil {
			return nil, fmt.Errorf("failed to parse replies of comment %s: %w", comment.ID, err)
		}
		children, err := p.ParseNodes(&repliesThing)
		if err != nil {
			return nil, err
		}
		comment.Children = children
	}

	return &comment, nil
}

func hasReplies(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != `""` && trimmed != "null"
}

// ParseMore extracts a MoreData from a Thing of kind "more".
func (p *Parser) ParseMore(thing *types.Thing) (*types.MoreData, error) {
	if thing == nil {
		return nil, fmt.Errorf("thing is nil")
	}
	if thing.Kind != types.KindMore {
		return nil, fmt.Errorf("expected more, got %s", thing.Kind)
	}

	var more types.MoreData
	if err := json.Unmarshal(thing.Data, &more); err != nil {
		return nil, fmt.Errorf("failed to parse More data: %w", err)
	}
	return &more, nil
}

// ParseNodes converts the children of a comment Listing into nodes, keeping
// API order. Kinds other than comments and continuation markers are skipped.
func (p *Parser) ParseNodes(listing *types.Thing) ([]types.Node, error) {
	listingData, err := p.ParseListing(listing)
	if err != nil {
		return nil, err
	}
	return p.parseThings(listingData.Children)
}

func (p *Parser) parseThings(things []*types.Thing) ([]types.Node, error) {
	nodes := make([]types.Node, 0, len(things))
	for _, child := range things {
		if child == nil {
			continue
		}
		switch child.Kind {
		case types.KindComment:
			comment, err := p.ParseComment(child)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, types.Node{Comment: comment})
		case types.KindMore:
			more, err := p.ParseMore(child)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, types.Node{More: more})
		}
	}
	return nodes, nil
}

// ParseThreadComments decodes the body of r/{sub}/comments/{id}.json, which is
// a [post_listing, comments_listing] pair, and returns the comment nodes.
func (p *Parser) ParseThreadComments(body []byte) ([]types.Node, error) {
	var response []*types.Thing
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "comments", Message: "failed to decode listing pair", Err: err}
	}

	switch len(response) {
	case 0:
		return nil, nil
	case 1:
		// Some responses carry only the comments listing.
		nodes, err := p.ParseNodes(response[0])
		if err != nil {
			return nil, &pkgerrs.ParseError{Operation: "comments", Err: err}
		}
		return nodes, nil
	default:
		nodes, err := p.ParseNodes(response[1])
		if err != nil {
			return nil, &pkgerrs.ParseError{Operation: "comments", Err: err}
		}
		return nodes, nil
	}
}

// redditErrors is the json.errors field of api_type=json responses: each
// entry is [code, message, field].
type redditErrors [][]any

func (e redditErrors) toAPIError(statusCode int, body []byte) error {
	if len(e) == 0 {
		return nil
	}
	first := e[0]
	apiErr := &pkgerrs.APIError{StatusCode: statusCode, Body: string(body)}
	if len(first) > 0 {
		apiErr.ErrorCode = fmt.Sprint(first[0])
	}
	if len(first) > 1 {
		apiErr.Message = fmt.Sprint(first[1])
	}
	if len(e) > 1 {
		apiErr.Message = fmt.Sprintf("%s (and %d more)", apiErr.Message, len(e)-1)
	}
	return apiErr
}

type jsonEnvelope struct {
	JSON struct {
		Errors redditErrors `json:"errors"`
		Data   struct {
			Things []*types.Thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// ParseMoreChildren decodes an api/morechildren.json response into a flat
// list of nodes. Errors reported in json.errors are returned as *errors.APIError.
func (p *Parser) ParseMoreChildren(statusCode int, body []byte) ([]types.Node, error) {
	var envelope jsonEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "morechildren", Message: "failed to decode response", Err: err}
	}
	if err := envelope.JSON.Errors.toAPIError(statusCode, body); err != nil {
		return nil, err
	}

	nodes, err := p.parseThings(envelope.JSON.Data.Things)
	if err != nil {
		return nil, &pkgerrs.ParseError{Operation: "morechildren", Err: err}
	}
	return nodes, nil
}

// ParseCommentReply decodes an api/comment response and returns the id of the
// newly created comment. A non-empty json.errors is returned as *errors.APIError.
func (p *Parser) ParseCommentReply(statusCode int, body []byte) (string, error) {
	var envelope jsonEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &pkgerrs.ParseError{Operation: "comment", Message: "failed to decode response", Err: err}
	}
	if err := envelope.JSON.Errors.toAPIError(statusCode, body); err != nil {
		return "", err
	}

	for _, thing := range envelope.JSON.Data.Things {
		if thing == nil || thing.Kind != types.KindComment {
			continue
		}
		var data types.ThingData
		if err := json.Unmarshal(thing.Data, &data); err != nil {
			return "", &pkgerrs.ParseError{Operation: "comment", Message: "failed to decode created comment", Err: err}
		}
		return data.ID, nil
	}
	// Posted but the created thing was not echoed back.
	return "", nil
}

// ParsePosts extracts the links of a subreddit listing such as hot.json.
func (p *Parser) ParsePosts(body []byte) ([]*types.Post, error) {
	var listing types.Thing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "hot", Message: "failed to decode listing", Err: err}
	}
	listingData, err := p.ParseListing(&listing)
	if err != nil {
		return nil, &pkgerrs.ParseError{Operation: "hot", Err: err}
	}

	posts := make([]*types.Post, 0, len(listingData.Children))
	for _, child := range listingData.Children {
		if child == nil || child.Kind != types.KindLink {
			continue
		}
		post, err := p.ParseLink(child)
		if err != nil {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}
