// Package summary builds bounded, single-line subjects and snippets from
// message content.
//
// Truncation is a hard cut on rune count followed by "...". It is not word
// boundary aware.
package summary

import (
	"regexp"

	"github.com/dalemusser/organizer/internal/domain/models"
)

// MaxSubject is the base subject cap for top-level messages.
const MaxSubject = 48

// ReplyPrefix is prepended to reply subjects. The reply cap grows by its
// length so the quoted parent keeps the same budget.
const ReplyPrefix = "Re: "

const ellipsis = "..."

var whitespace = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every run of whitespace, including newlines,
// with a single space.
func CollapseWhitespace(s string) string {
	return whitespace.ReplaceAllString(s, " ")
}

// Truncate cuts s to max runes and appends "..." when it was longer.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + ellipsis
}

// Snippet collapses whitespace and truncates to max runes.
func Snippet(content string, max int) string {
	return Truncate(CollapseWhitespace(content), max)
}

// Subject returns the notification subject for msg. For replies,
// parentContent is the content of the message being replied to.
func Subject(msg models.Message, parentContent string) string {
	if msg.IsReply() {
		return Snippet(ReplyPrefix+parentContent, MaxSubject+len(ReplyPrefix))
	}
	return Snippet(msg.Content, MaxSubject)
}
