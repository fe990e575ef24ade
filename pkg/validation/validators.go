// Package validation checks identifiers received from or sent to Reddit.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jamesprial/xkcdbot/pkg/types"
)

// Regular expressions for validating Reddit data formats
var (
	// base36Regex matches base36 encoded IDs (0-9, a-z)
	base36Regex = regexp.MustCompile(`^[0-9a-z]+$`)

	// usernameRegex matches valid Reddit usernames (3-20 chars, alphanumeric + underscore + hyphen)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

	// fullnameRegex matches Reddit fullname IDs (type prefix + base36 ID)
	// Format: t[1-6]_[base36_id]
	fullnameRegex = regexp.MustCompile(`^t[1-6]_[0-9a-z]+$`)
)

// IsValidBase36 reports whether s is a lowercase base36 id.
func IsValidBase36(s string) bool {
	return base36Regex.MatchString(s)
}

// IsValidUsername reports whether s is a valid Reddit account name.
func IsValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// IsValidFullname reports whether s is a kind-prefixed id such as "t1_abc".
func IsValidFullname(s string) bool {
	return fullnameRegex.MatchString(s)
}

// ReplyTarget returns the "t1_" fullname a reply to c must be posted against.
// The comment's own fullname is preferred; otherwise it is derived from the id.
func ReplyTarget(c *types.Comment) (string, error) {
	if c == nil {
		return "", fmt.Errorf("comment is nil")
	}

	prefix := types.KindComment + "_"
	if c.Name != "" {
		if !IsValidFullname(c.Name) || !strings.HasPrefix(c.Name, prefix) {
			return "", fmt.Errorf("comment %q has invalid fullname %q", c.ID, c.Name)
		}
		if c.ID != "" && c.Name != prefix+c.ID {
			return "", fmt.Errorf("comment fullname %q does not match id %q", c.Name, c.ID)
		}
		return c.Name, nil
	}

	if !IsValidBase36(c.ID) {
		return "", fmt.Errorf("comment id %q is not base36", c.ID)
	}
	return prefix + c.ID, nil
}
