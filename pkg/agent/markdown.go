package agent

import (
	"regexp"
	"strings"
)

var (
	fencedCode = regexp.MustCompile("(?s)```.*?```")
	inlineCode = regexp.MustCompile("`[^`]*`")
	emphasis   = regexp.MustCompile(`\*\*|__|\*|_`)
)

// StripMarkdown removes emphasis markers and code from text meant for plain
// text channels such as SMS.
func StripMarkdown(text string) string {
	text = fencedCode.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
