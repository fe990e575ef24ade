package test_generators

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/jamesprial/xkcdbot/pkg/types"
)

// PostGenerator generates hot-list entries for testing
type PostGenerator struct {
	rand   *rand.Rand
	titles []string
}

// NewPostGenerator creates a new post generator
func NewPostGenerator(seed int64) *PostGenerator {
	return &PostGenerator{
		rand: rand.New(rand.NewSource(seed)),
		titles: []string{
			"Today's comic hits close to home",
			"Which xkcd do you reference most at work?",
			"Found this taped to a server rack",
			"Standards, again",
			"The one about passwords is still relevant",
		},
	}
}

// GeneratePosts creates count posts in subreddit with ids p1, p2, ...
func (pg *PostGenerator) GeneratePosts(subreddit string, count int) []types.Post {
	posts := make([]types.Post, 0, count)
	for i := 1; i <= count; i++ {
		id := "p" + strconv.Itoa(i)
		posts = append(posts, types.Post{
			ThingData:   types.ThingData{ID: id, Name: types.ThreadFullname(id)},
			Title:       pg.titles[pg.rand.Intn(len(pg.titles))],
			Author:      fmt.Sprintf("poster_%d", pg.rand.Intn(1000)),
			Subreddit:   subreddit,
			Permalink:   fmt.Sprintf("/r/%s/comments/%s/", subreddit, id),
			NumComments: pg.rand.Intn(300),
		})
	}
	return posts
}

// HotResponse renders posts as an r/{sub}/hot.json listing.
func HotResponse(posts []types.Post) string {
	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{
			"kind": types.KindLink,
			"data": map[string]any{
				"id":           p.ID,
				"name":         p.Name,
				"title":        p.Title,
				"author":       p.Author,
				"subreddit":    p.Subreddit,
				"permalink":    p.Permalink,
				"num_comments": p.NumComments,
				"stickied":     p.Stickied,
				"created_utc":  p.CreatedUTC,
			},
		})
	}
	return mustJSON(map[string]any{
		"kind": types.KindListing,
		"data": map[string]any{"children": children, "after": nil, "before": nil},
	})
}
