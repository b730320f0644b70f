// internal/domain/models/message.go
package models

import "time"

// Message belongs to one Context and one author Person.
//
// Threads are two levels deep: a top-level message and a flat list of
// replies. InReplyTo always points at a top-level message.
type Message struct {
	ID        int64     `bson:"_id" json:"id"`
	PersonID  int64     `bson:"person_id" json:"person_id"`
	ContextID int64     `bson:"context_id" json:"context_id"`
	InReplyTo *int64    `bson:"in_reply_to,omitempty" json:"in_reply_to,omitempty"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated"`
}

// IsReply reports whether the message is a reply to a top-level message.
func (m Message) IsReply() bool {
	return m.InReplyTo != nil
}

// DigestEntry is a message joined with its author's display name.
type DigestEntry struct {
	Message    `bson:",inline"`
	AuthorName string `bson:"author_name" json:"author_name"`
}

// UnseenQuery selects digest candidates in one context.
type UnseenQuery struct {
	ContextID       int64
	ExcludePersonID int64
	AfterID         *int64    // only ids greater than this; nil when no watermark exists
	Since           time.Time // start of the lookback window
}
