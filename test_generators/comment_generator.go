package test_generators

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/jamesprial/xkcdbot/pkg/types"
)

// ThreadGenerator builds synthetic comment trees and the Reddit JSON that
// carries them. Ids are sequential so tests can predict them.
type ThreadGenerator struct {
	rand      *rand.Rand
	threadID  string
	subreddit string
	seq       int
	bodies    []string
	users     []string
}

// NewThreadGenerator creates a generator for one thread. The seed only
// affects authors and filler text.
func NewThreadGenerator(seed int64, subreddit, threadID string) *ThreadGenerator {
	return &ThreadGenerator{
		rand:      rand.New(rand.NewSource(seed)),
		threadID:  threadID,
		subreddit: subreddit,
		bodies: []string{
			"I completely agree. This is exactly what I was thinking.",
			"Actually, that is not entirely accurate. Let me explain...",
			"Great point! I've had a similar experience.",
			"This reminds me of something. Has anyone else noticed this?",
			"Can someone elaborate? I'm not sure I understand.",
			"Counterpoint: it depends. What do you all think?",
		},
		users: []string{
			"thoughtful_commenter", "expert_analyst", "casual_observer", "debate_enthusiast",
			"helpful_explainer", "skeptic_user", "supportive_member", "critical_thinker",
		},
	}
}

// NextID returns the next sequential base36 comment id.
func (g *ThreadGenerator) NextID() string {
	g.seq++
	return "c" + strconv.FormatInt(int64(g.seq), 36)
}

// Comment creates a comment with the given body and children.
func (g *ThreadGenerator) Comment(body string, children ...types.Node) *types.Comment {
	id := g.NextID()
	return &types.Comment{
		ThingData: types.ThingData{ID: id, Name: types.KindComment + "_" + id},
		Author:    g.users[g.rand.Intn(len(g.users))],
		Body:      body,
		LinkID:    types.ThreadFullname(g.threadID),
		Subreddit: g.subreddit,
		Score:     g.rand.Intn(500),
		Children:  children,
	}
}

// CommentBy creates a comment with a fixed author.
func (g *ThreadGenerator) CommentBy(author, body string, children ...types.Node) *types.Comment {
	c := g.Comment(body, children...)
	c.Author = author
	return c
}

// Filler returns a comment body without comic links.
func (g *ThreadGenerator) Filler() string {
	return g.bodies[g.rand.Intn(len(g.bodies))]
}

// ComicBody returns a comment body linking comic id.
func (g *ThreadGenerator) ComicBody(comicID string) string {
	return fmt.Sprintf("%s Relevant: https://xkcd.com/%s/", g.Filler(), comicID)
}

// FlatComments creates n childless comments; every comicEvery-th one links
// a comic (0 disables comic links).
func (g *ThreadGenerator) FlatComments(n, comicEvery int) []*types.Comment {
	comments := make([]*types.Comment, 0, n)
	for i := 1; i <= n; i++ {
		body := g.Filler()
		if comicEvery > 0 && i%comicEvery == 0 {
			body = g.ComicBody(strconv.Itoa(i % 3000))
		}
		comments = append(comments, g.Comment(body))
	}
	return comments
}

// More creates a continuation marker for ids.
func (g *ThreadGenerator) More(parentID string, ids ...string) *types.MoreData {
	return &types.MoreData{
		ThingData: types.ThingData{ID: ids[0], Name: types.KindMore + "_" + ids[0]},
		ParentID:  parentID,
		Count:     len(ids),
		Children:  ids,
	}
}

// ContinueThread creates the id-less marker Reddit emits below its inline
// depth limit.
func (g *ThreadGenerator) ContinueThread(parentID string) *types.MoreData {
	return &types.MoreData{
		ThingData: types.ThingData{ID: "_", Name: types.KindComment + "__"},
		ParentID:  parentID,
		Children:  []string{},
	}
}

// Nodes wraps comments as nodes.
func Nodes(comments ...*types.Comment) []types.Node {
	nodes := make([]types.Node, 0, len(comments))
	for _, c := range comments {
		nodes = append(nodes, types.Node{Comment: c})
	}
	return nodes
}

// IDs returns the ids of comments.
func IDs(comments []*types.Comment) []string {
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	return ids
}

// Flatten returns every comment of nodes in pre-order.
func Flatten(nodes []types.Node) []*types.Comment {
	var result []*types.Comment
	for _, n := range nodes {
		if n.Comment == nil {
			continue
		}
		result = append(result, n.Comment)
		result = append(result, Flatten(n.Comment.Children)...)
	}
	return result
}

// NodeThing renders a node as a Reddit thing.
func NodeThing(node types.Node) map[string]any {
	if node.More != nil {
		return map[string]any{
			"kind": types.KindMore,
			"data": map[string]any{
				"id":        node.More.ID,
				"name":      node.More.Name,
				"parent_id": node.More.ParentID,
				"count":     node.More.Count,
				"depth":     node.More.Depth,
				"children":  node.More.Children,
			},
		}
	}

	c := node.Comment
	var replies any = ""
	if len(c.Children) > 0 {
		replies = Listing(c.Children)
	}
	return map[string]any{
		"kind": types.KindComment,
		"data": map[string]any{
			"id":          c.ID,
			"name":        c.Name,
			"author":      c.Author,
			"body":        c.Body,
			"link_id":     c.LinkID,
			"parent_id":   c.ParentID,
			"subreddit":   c.Subreddit,
			"score":       c.Score,
			"created_utc": c.CreatedUTC,
			"edited":      false,
			"replies":     replies,
		},
	}
}

// Listing renders nodes as a Listing thing.
func Listing(nodes []types.Node) map[string]any {
	children := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		children = append(children, NodeThing(n))
	}
	return map[string]any{
		"kind": types.KindListing,
		"data": map[string]any{
			"before":   nil,
			"after":    nil,
			"children": children,
		},
	}
}

// CommentsResponse renders the [post_listing, comments_listing] pair
// returned by r/{sub}/comments/{id}.json.
func (g *ThreadGenerator) CommentsResponse(nodes []types.Node) string {
	post := map[string]any{
		"kind": types.KindListing,
		"data": map[string]any{
			"children": []map[string]any{{
				"kind": types.KindLink,
				"data": map[string]any{
					"id":        g.threadID,
					"name":      types.ThreadFullname(g.threadID),
					"subreddit": g.subreddit,
					"title":     "Synthetic thread " + g.threadID,
				},
			}},
		},
	}
	return mustJSON([]any{post, Listing(nodes)})
}

// TopLevelResponse renders the depth=1 view of nodes: top-level comments
// without replies, followed by top-level markers.
func (g *ThreadGenerator) TopLevelResponse(nodes []types.Node) string {
	flat := make([]types.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Comment != nil {
			stripped := *n.Comment
			stripped.Children = nil
			flat = append(flat, types.Node{Comment: &stripped})
		} else {
			flat = append(flat, n)
		}
	}
	return g.CommentsResponse(flat)
}

// MoreChildrenResponse renders an api/morechildren.json body.
func MoreChildrenResponse(nodes []types.Node) string {
	things := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.Comment != nil {
			// morechildren returns flat things; replies are never inlined.
			stripped := *n.Comment
			stripped.Children = nil
			n = types.Node{Comment: &stripped}
		}
		things = append(things, NodeThing(n))
	}
	return mustJSON(map[string]any{
		"json": map[string]any{
			"errors": []any{},
			"data":   map[string]any{"things": things},
		},
	})
}

// CommentReplyResponse renders a successful api/comment body.
func CommentReplyResponse(replyID, parentName string) string {
	return mustJSON(map[string]any{
		"json": map[string]any{
			"errors": []any{},
			"data": map[string]any{
				"things": []map[string]any{{
					"kind": types.KindComment,
					"data": map[string]any{
						"id":        replyID,
						"name":      types.KindComment + "_" + replyID,
						"parent_id": parentName,
					},
				}},
			},
		},
	})
}

// ErrorResponse renders an api_type=json body carrying one error.
func ErrorResponse(code, message, field string) string {
	return mustJSON(map[string]any{
		"json": map[string]any{
			"errors": [][]string{{code, message, field}},
		},
	})
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
