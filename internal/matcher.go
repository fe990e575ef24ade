package internal

import "regexp"

// comicLinkPattern matches an xkcd comic link. The id must be followed by
// whitespace, a slash, a closing parenthesis or the end of the text, so
// "xkcd.com/61412" and "xkcd.com/614abc" do not match.
var comicLinkPattern = regexp.MustCompile(`https?://(?:www\.)?xkcd\.com/([0-9]{1,4})(?:[\s/)]|$)`)

// MatchComicID returns the first comic id linked from body.
func MatchComicID(body string) (string, bool) {
	m := comicLinkPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}
