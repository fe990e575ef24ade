package internal

import "testing"

func TestMatchComicID(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantID string
		wantOK bool
	}{
		{name: "bare link", body: "https://xkcd.com/614", wantID: "614", wantOK: true},
		{name: "trailing slash", body: "see https://xkcd.com/614/ for details", wantID: "614", wantOK: true},
		{name: "www and http", body: "http://www.xkcd.com/1 lol", wantID: "1", wantOK: true},
		{name: "markdown link", body: "[relevant](https://xkcd.com/927)", wantID: "927", wantOK: true},
		{name: "followed by newline", body: "https://xkcd.com/2347\nthis one", wantID: "2347", wantOK: true},
		{name: "first of several", body: "https://xkcd.com/1 and https://xkcd.com/2", wantID: "1", wantOK: true},
		{name: "five digits", body: "https://xkcd.com/61412", wantOK: false},
		{name: "trailing letters", body: "https://xkcd.com/614abc", wantOK: false},
		{name: "trailing period", body: "https://xkcd.com/614.", wantOK: false},
		{name: "no scheme", body: "xkcd.com/614", wantOK: false},
		{name: "other host", body: "https://notxkcd.com.evil/614", wantOK: false},
		{name: "explainxkcd", body: "https://www.explainxkcd.com/wiki/index.php/614", wantOK: false},
		{name: "no digits", body: "https://xkcd.com/", wantOK: false},
		{name: "empty", body: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := MatchComicID(tt.body)
			if ok != tt.wantOK {
				t.Fatalf("MatchComicID(%q) ok = %v, want %v", tt.body, ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("MatchComicID(%q) id = %q, want %q", tt.body, id, tt.wantID)
			}
		})
	}
}
