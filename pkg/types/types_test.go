package types

import (
	"encoding/json"
	"testing"
)

func TestEdited_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantEdit  bool
		wantTime  float64
		wantError bool
	}{
		{name: "false boolean", input: `false`},
		{name: "true boolean", input: `true`, wantEdit: true},
		{name: "null value", input: `null`},
		{name: "timestamp", input: `1234567890.5`, wantEdit: true, wantTime: 1234567890.5},
		{name: "invalid value", input: `"invalid"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Edited
			err := json.Unmarshal([]byte(tt.input), &e)

			if (err != nil) != tt.wantError {
				t.Errorf("Edited.UnmarshalJSON() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if err != nil {
				return
			}

			if e.IsEdited != tt.wantEdit {
				t.Errorf("Edited.IsEdited = %v, want %v", e.IsEdited, tt.wantEdit)
			}
			if e.Timestamp != tt.wantTime {
				t.Errorf("Edited.Timestamp = %v, want %v", e.Timestamp, tt.wantTime)
			}
		})
	}
}

func TestComment_UnmarshalIgnoresReplies(t *testing.T) {
	raw := `{"id":"c1","name":"t1_c1","author":"alice","body":"hi","link_id":"t3_p","parent_id":"t3_p","subreddit":"test","edited":false,"replies":""}`

	var c Comment
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.GetID() != "c1" || c.GetName() != "t1_c1" {
		t.Errorf("unexpected identity %q/%q", c.GetID(), c.GetName())
	}
	if c.Children != nil {
		t.Errorf("expected children to be left for the parser, got %v", c.Children)
	}
}

func TestThreadFullname(t *testing.T) {
	tests := map[string]string{
		"hvfakc":    "t3_hvfakc",
		"t3_hvfakc": "t3_hvfakc",
	}
	for in, want := range tests {
		if got := ThreadFullname(in); got != want {
			t.Errorf("ThreadFullname(%q) = %q, want %q", in, got, want)
		}
	}
}
