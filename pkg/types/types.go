package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reddit kind prefixes used by the bot.
const (
	KindListing = "Listing"
	KindComment = "t1"
	KindLink    = "t3"
	KindMore    = "more"
)

// RedditObject defines the common behavior for Reddit API objects the bot reads.
type RedditObject interface {
	GetID() string
	GetName() string
}

// ThingData holds the common fields for Reddit objects.
type ThingData struct {
	ID   string `json:"id"`   // ID (without prefix)
	Name string `json:"name"` // Full name (e.g., "t1_abc123")
}

// GetID returns the object's ID.
func (td ThingData) GetID() string {
	return td.ID
}

// GetName returns the object's full name.
func (td ThingData) GetName() string {
	return td.Name
}

// Thing is the envelope Reddit wraps every object in: a kind tag plus raw data
// that is decoded once the kind is known.
type Thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Edited represents a field that can be a boolean or a timestamp.
type Edited struct {
	IsEdited  bool
	Timestamp float64
}

// UnmarshalJSON implements json.Unmarshaler to handle mixed types for the "edited" field.
func (e *Edited) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(string(data)) {
	case "false", "null":
		*e = Edited{}
		return nil
	case "true":
		*e = Edited{IsEdited: true}
		return nil
	}

	var timestamp float64
	if err := json.Unmarshal(data, &timestamp); err != nil {
		return fmt.Errorf("unrecognized type for 'edited' field: %s", data)
	}
	*e = Edited{IsEdited: true, Timestamp: timestamp}
	return nil
}

// ListingData contains the data for a Listing.
type ListingData struct {
	BeforeFullname string   `json:"before"`
	AfterFullname  string   `json:"after"`
	Children       []*Thing `json:"children"` // Raw Things with kind+data, parsed by caller
}

// MoreData is a continuation marker: ids of comments Reddit did not inline.
// They must be resolved through the morechildren endpoint.
type MoreData struct {
	ThingData
	ParentID string   `json:"parent_id"`
	Count    int      `json:"count"`
	Depth    int      `json:"depth"`
	Children []string `json:"children"`
}

// Node is one entry of a comment's reply list. Exactly one field is set.
type Node struct {
	Comment *Comment
	More    *MoreData
}

// Comment is a Reddit comment as the crawler sees it. Children keeps the
// API order of resolved replies and continuation markers.
type Comment struct {
	ThingData
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	LinkID     string  `json:"link_id"`   // Thread fullname, "t3_..."
	ParentID   string  `json:"parent_id"` // Parent fullname, "t1_..." or "t3_..."
	Subreddit  string  `json:"subreddit"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Edited     Edited  `json:"edited"`
	Children   []Node  `json:"-"` // Parsed by Parser from the raw replies field
}

// Post represents the subset of a Reddit link the outer loop needs.
type Post struct {
	ThingData
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	NumComments int     `json:"num_comments"`
	Stickied    bool    `json:"stickied"`
	CreatedUTC  float64 `json:"created_utc"`
}

// ReplyRecord describes one successfully posted reply. It is handed to the
// ledger, whose durable write is what marks the parent comment as replied.
type ReplyRecord struct {
	ParentCommentID string
	ReplyID         string
	Subreddit       string
	ResourceID      string
	CreatedAt       time.Time
}

// Source is a subreddit the outer loop samples threads from.
type Source struct {
	Name  string `koanf:"name"`
	Limit int    `koanf:"limit"`
}

// ThreadFullname returns the "t3_" fullname for a thread id, leaving an
// already-prefixed value untouched.
func ThreadFullname(id string) string {
	if strings.HasPrefix(id, KindLink+"_") {
		return id
	}
	return KindLink + "_" + id
}
