package extract

import (
	"regexp"
	"strings"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)
	// \s alone is ASCII-only; \p{Z} adds NBSP and the Unicode separators.
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
)

// StripMarkup turns an HTML document into plain text. Script and style blocks
// are removed together with their content, every other tag is replaced by a
// space, whitespace runs collapse to a single space and the result is
// trimmed. Applying StripMarkup to its own output returns it unchanged.
func StripMarkup(html string) string {
	s := scriptBlock.ReplaceAllString(html, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, " ")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
