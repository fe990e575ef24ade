package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
	"github.com/jamesprial/xkcdbot/test_generators"
)

func TestParser_ParseComment_Replies(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name         string
		data         string
		wantChildren int
	}{
		{
			name:         "empty string replies",
			data:         `{"id":"a","name":"t1_a","body":"x","replies":""}`,
			wantChildren: 0,
		},
		{
			name:         "missing replies",
			data:         `{"id":"a","name":"t1_a","body":"x"}`,
			wantChildren: 0,
		},
		{
			name:         "null replies",
			data:         `{"id":"a","name":"t1_a","body":"x","replies":null}`,
			wantChildren: 0,
		},
		{
			name: "listing with comment and more",
			data: `{"id":"a","name":"t1_a","body":"x","replies":{"kind":"Listing","data":{"children":[
				{"kind":"t1","data":{"id":"b","name":"t1_b","body":"y","replies":""}},
				{"kind":"more","data":{"id":"c","name":"t1_c","parent_id":"t1_a","count":2,"children":["c","d"]}}
			]}}}`,
			wantChildren: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comment, err := p.ParseComment(&types.Thing{Kind: types.KindComment, Data: json.RawMessage(tt.data)})
			if err != nil {
				t.Fatalf("ParseComment returned error: %v", err)
			}
			if comment.ID != "a" || comment.Name != "t1_a" {
				t.Errorf("unexpected identity %q/%q", comment.ID, comment.Name)
			}
			if len(comment.Children) != tt.wantChildren {
				t.Fatalf("expected %d children, got %d", tt.wantChildren, len(comment.Children))
			}
			if tt.wantChildren == 2 {
				if comment.Children[0].Comment == nil || comment.Children[0].Comment.ID != "b" {
					t.Errorf("expected first child to be comment b, got %+v", comment.Children[0])
				}
				more := comment.Children[1].More
				if more == nil || len(more.Children) != 2 || more.Children[1] != "d" {
					t.Errorf("expected second child to be marker [c d], got %+v", comment.Children[1])
				}
			}
		})
	}
}

func TestParser_ParseComment_WrongKind(t *testing.T) {
	p := NewParser()
	if _, err := p.ParseComment(&types.Thing{Kind: types.KindLink, Data: json.RawMessage(`{}`)}); err == nil {
		t.Error("expected error for wrong kind")
	}
	if _, err := p.ParseComment(nil); err == nil {
		t.Error("expected error for nil thing")
	}
}

func TestParser_ParseThreadComments(t *testing.T) {
	gen := test_generators.NewThreadGenerator(1, "test", "abc")
	reply := gen.Comment("reply")
	top := gen.Comment("top", types.Node{Comment: reply}, types.Node{More: gen.More("t1_x", "m1", "m2")})
	second := gen.Comment("second")

	body := gen.CommentsResponse(test_generators.Nodes(top, second))
	nodes, err := NewParser().ParseThreadComments([]byte(body))
	if err != nil {
		t.Fatalf("ParseThreadComments returned error: %v", err)
	}

	if len(nodes) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d", len(nodes))
	}
	got := test_generators.IDs(test_generators.Flatten(nodes))
	want := []string{top.ID, reply.ID, second.ID}
	if len(got) != len(want) {
		t.Fatalf("flattened ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flattened ids = %v, want %v", got, want)
			break
		}
	}
	if nodes[0].Comment.Children[1].More == nil {
		t.Error("expected marker to be kept in place")
	}
}

func TestParser_ParseThreadComments_Edges(t *testing.T) {
	p := NewParser()

	nodes, err := p.ParseThreadComments([]byte(`[]`))
	if err != nil || len(nodes) != 0 {
		t.Errorf("empty array: nodes=%v err=%v", nodes, err)
	}

	nodes, err = p.ParseThreadComments([]byte(`[{"kind":"Listing","data":{"children":[]}},{"kind":"Listing","data":{"children":[]}}]`))
	if err != nil || len(nodes) != 0 {
		t.Errorf("empty listing: nodes=%v err=%v", nodes, err)
	}

	_, err = p.ParseThreadComments([]byte(`{"error": 404}`))
	var parseErr *pkgerrs.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ParseError for non-array body, got %v", err)
	}
}

func TestParser_ParseMoreChildren(t *testing.T) {
	gen := test_generators.NewThreadGenerator(1, "test", "abc")
	c1 := gen.Comment("one", types.Node{Comment: gen.Comment("nested")})
	c2 := gen.Comment("two")
	marker := gen.More("t1_"+c2.ID, "z1", "z2")

	body := test_generators.MoreChildrenResponse([]types.Node{{Comment: c1}, {More: marker}, {Comment: c2}})
	nodes, err := NewParser().ParseMoreChildren(http.StatusOK, []byte(body))
	if err != nil {
		t.Fatalf("ParseMoreChildren returned error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].Comment.ID != c1.ID || len(nodes[0].Comment.Children) != 0 {
		t.Errorf("unexpected first node %+v", nodes[0].Comment)
	}
	if nodes[1].More == nil || nodes[1].More.Children[0] != "z1" {
		t.Errorf("unexpected marker %+v", nodes[1])
	}
}

func TestParser_ParseMoreChildren_Errors(t *testing.T) {
	body := test_generators.ErrorResponse("TOO_MANY_COMMENTS", "too many", "children")
	_, err := NewParser().ParseMoreChildren(http.StatusOK, []byte(body))

	var apiErr *pkgerrs.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.ErrorCode != "TOO_MANY_COMMENTS" || apiErr.Message != "too many" {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
}

func TestParser_ParseCommentReply(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name     string
		body     string
		wantID   string
		wantCode string
		wantErr  bool
	}{
		{
			name:   "created",
			body:   test_generators.CommentReplyResponse("r42", "t1_abc"),
			wantID: "r42",
		},
		{
			name:     "rate limited",
			body:     test_generators.ErrorResponse("RATELIMIT", "you are doing that too much. try again in 9 minutes.", "ratelimit"),
			wantCode: "RATELIMIT",
			wantErr:  true,
		},
		{
			name:     "deleted parent",
			body:     test_generators.ErrorResponse("DELETED_COMMENT", "that comment has been deleted", "parent"),
			wantCode: "DELETED_COMMENT",
			wantErr:  true,
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: true,
		},
		{
			name:   "no things echoed",
			body:   `{"json":{"errors":[],"data":{"things":[]}}}`,
			wantID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.ParseCommentReply(http.StatusOK, []byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantCode != "" {
					var apiErr *pkgerrs.APIError
					if !errors.As(err, &apiErr) || apiErr.ErrorCode != tt.wantCode {
						t.Errorf("expected APIError %s, got %v", tt.wantCode, err)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommentReply returned error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestParser_ParsePosts(t *testing.T) {
	posts := test_generators.NewPostGenerator(3).GeneratePosts("xkcd", 3)
	got, err := NewParser().ParsePosts([]byte(test_generators.HotResponse(posts)))
	if err != nil {
		t.Fatalf("ParsePosts returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(got))
	}
	for i, p := range got {
		if p.ID != posts[i].ID || p.Subreddit != "xkcd" {
			t.Errorf("post %d = %+v", i, p)
		}
	}

	if _, err := NewParser().ParsePosts([]byte(`[]`)); err == nil {
		t.Error("expected error for non-listing body")
	}
}
