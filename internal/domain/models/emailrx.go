// internal/domain/models/emailrx.go
package models

import "time"

// NoID marks an InboundRecord whose message or person could not be resolved.
const NoID int64 = -1

// Inbound record statuses.
const (
	InboundCreated      = "created"
	InboundUncorrelated = "uncorrelated"
	InboundUnparsable   = "unparsable"
	InboundFailed       = "failed"
)

// InboundRecord is the audit row for one inbound reply payload
// (collection email_rx), stored whether or not it was correlated.
type InboundRecord struct {
	ID        string    `bson:"_id" json:"id"`
	MessageID int64     `bson:"message_id" json:"message_id"` // NoID if correlation failed
	PersonID  int64     `bson:"person_id" json:"person_id"`   // NoID if correlation failed
	Status    string    `bson:"status" json:"status"`
	Payload   string    `bson:"payload" json:"payload"` // raw JSON of the webhook payload
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
