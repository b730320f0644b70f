// Package htmlsanitize turns inbound HTML email bodies into plain text.
package htmlsanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()

	// Block-level boundaries become line breaks before tags are dropped so
	// quoted lines stay on their own line.
	breakTags  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>|</tr>|</h[1-6]>|</blockquote>`)
	dropBlocks = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// StripTags returns the text content of an HTML fragment.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	s = dropBlocks.ReplaceAllString(s, "")
	s = breakTags.ReplaceAllString(s, "$0\n")
	s = strict.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
