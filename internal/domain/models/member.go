// internal/domain/models/member.go
package models

import "time"

// Member is the join between a Person and a Context.
// Exactly one document per (person_id, context_id). Leaving a context sets
// Active to false; re-joining reactivates the same document.
type Member struct {
	ID         int64     `bson:"_id" json:"id"`
	PersonID   int64     `bson:"person_id" json:"person_id"`
	ContextID  int64     `bson:"context_id" json:"context_id"`
	Active     bool      `bson:"active" json:"active"`
	LeaveSlug  string    `bson:"leave_slug" json:"leave_slug"`   // one-click unsubscribe capability
	InviteSlug string    `bson:"invite_slug" json:"invite_slug"` // invite link capability
	InvitedBy  *int64    `bson:"invited_by,omitempty" json:"invited_by,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// Recipient is an active member joined with its person and context, as
// needed to address one notification email.
type Recipient struct {
	MemberID    int64  `bson:"member_id" json:"member_id"`
	LeaveSlug   string `bson:"leave_slug" json:"leave_slug"`
	InviteSlug  string `bson:"invite_slug" json:"invite_slug"`
	PersonID    int64  `bson:"person_id" json:"person_id"`
	Email       string `bson:"email" json:"email"`
	Name        string `bson:"name" json:"name"`
	ContextName string `bson:"context_name" json:"context_name"`
	ContextSlug string `bson:"context_slug" json:"context_slug"`
}

// DigestMembership is one (person, context) pair whose email preference is
// set to digest.
type DigestMembership struct {
	PersonID  int64 `bson:"person_id" json:"person_id"`
	ContextID int64 `bson:"context_id" json:"context_id"`
}
