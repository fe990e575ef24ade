package internal

import (
	"errors"
	"strings"
	"testing"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
)

// checkConfigError fails unless err is nil when want is empty, or a
// *ConfigError on field whose message contains want.
func checkConfigError(t *testing.T, err error, field, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return
	}
	var cfgErr *pkgerrs.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError containing %q, got %v", want, err)
	}
	if !strings.HasPrefix(cfgErr.Field, field) {
		t.Errorf("Field = %q, want prefix %q", cfgErr.Field, field)
	}
	if !strings.Contains(cfgErr.Message, want) {
		t.Errorf("Message = %q, want it to contain %q", cfgErr.Message, want)
	}
}

func TestValidator_ValidateSubredditName(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		input string
		want  string
	}{
		{"xkcd", ""},
		{"ProgrammerHumor", ""},
		{"ask_science", ""},
		{"abcdefghijklmnopqrstu", ""},
		{"", "cannot be empty"},
		{"ab", "at least 3"},
		{"abcdefghijklmnopqrstuv", "cannot exceed 21"},
		{"_xkcd", "start or end with underscore"},
		{"xkcd_", "start or end with underscore"},
		{"x__kcd", "consecutive underscores"},
		{"r/xkcd", "invalid character '/'"},
		{"xkcd hot", "invalid character ' '"},
		{"../etc", "invalid character"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			checkConfigError(t, v.ValidateSubredditName(tt.input), "subreddit", tt.want)
		})
	}
}

func TestValidator_ValidateLimit(t *testing.T) {
	v := NewValidator()

	for limit, want := range map[int]string{
		0:   "",
		25:  "",
		100: "",
		-1:  "cannot be negative",
		101: "cannot exceed 100",
	} {
		checkConfigError(t, v.ValidateLimit(limit), "limit", want)
	}
}

func TestValidator_ValidateCommentIDs(t *testing.T) {
	v := NewValidator()

	batch := func(n int) []string {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = "c" + strings.Repeat("a", i%5+1)
		}
		return ids
	}

	tests := []struct {
		name  string
		ids   []string
		field string
		want  string
	}{
		{"empty batch", nil, "", ""},
		{"full batch", batch(MaxMoreChildren), "", ""},
		{"over the cap", batch(MaxMoreChildren + 1), "CommentIDs", "cannot request more than 100"},
		{"blank id", []string{"abc", ""}, "CommentIDs[1]", "cannot be empty"},
		{"fullname instead of id", []string{"t1_abc"}, "CommentIDs[0]", "invalid character"},
		{"csv smuggled into one id", []string{"abc,def"}, "CommentIDs[0]", "invalid character"},
		{"overlong id", []string{strings.Repeat("z", maxCommentIDLength+1)}, "CommentIDs[0]", "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkConfigError(t, v.ValidateCommentIDs(tt.ids), tt.field, tt.want)
		})
	}
}

func TestValidator_ValidateUserAgent(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"reddit convention", "linux:xkcdbot:v1.0 (by /u/xkcd_bot)", ""},
		{"at the limit", strings.Repeat("u", maxUserAgentLength), ""},
		{"empty", "", "cannot be empty"},
		{"over the limit", strings.Repeat("u", maxUserAgentLength+1), "too long"},
		{"header injection", "xkcdbot/1.0\r\nAuthorization: bearer stolen", "newline"},
		{"bare line feed", "xkcdbot/1.0\nX-Extra: 1", "newline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkConfigError(t, v.ValidateUserAgent(tt.ua), "reddit.user_agent", tt.want)
		})
	}
}

func TestValidator_ValidateThreadID(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		id   string
		want string
	}{
		{"hvfakc", ""},
		{"t3_hvfakc", ""},
		{"", "thread ID cannot be empty"},
		{"t3_", "thread ID cannot be empty"},
		{"t1_abc", "invalid character"},
		{"../hot", "invalid character"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			checkConfigError(t, v.ValidateThreadID(tt.id), "thread", tt.want)
		})
	}
}
