// internal/domain/models/emailtx.go
package models

import "time"

// Ticket records one delivered notification email (collection email_tx).
//
// ID is the transport's message identifier. PersonID is the recipient, so an
// inbound reply echoing ID in its In-Reply-To header is attributed to them.
type Ticket struct {
	ID        string    `bson:"_id" json:"id"`
	ContextID int64     `bson:"context_id" json:"context_id"`
	MessageID int64     `bson:"message_id" json:"message_id"`
	PersonID  int64     `bson:"person_id" json:"person_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
