// Package links builds the absolute URLs that appear in outgoing email.
package links

import (
	"fmt"
	"strings"

	"github.com/dalemusser/organizer/internal/domain/models"
)

// Builder joins paths onto the public base URL.
type Builder struct {
	base string
}

// New trims any trailing slash from baseURL.
func New(baseURL string) Builder {
	return Builder{base: strings.TrimRight(baseURL, "/")}
}

// Message returns the permalink of msg. Replies link to their top-level
// message with an anchor on the reply.
func (b Builder) Message(contextSlug string, msg models.Message) string {
	if msg.InReplyTo != nil {
		return fmt.Sprintf("%s/group/%s/%d#%d", b.base, contextSlug, *msg.InReplyTo, msg.ID)
	}
	return fmt.Sprintf("%s/group/%s/%d", b.base, contextSlug, msg.ID)
}

// Settings returns the global notification settings page.
func (b Builder) Settings() string {
	return b.base + "/settings"
}

// Leave returns the one-click unsubscribe link for a member.
func (b Builder) Leave(leaveSlug string) string {
	return b.base + "/leave/" + leaveSlug
}
