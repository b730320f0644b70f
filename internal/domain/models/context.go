// internal/domain/models/context.go
package models

import "time"

// Context is a named group that owns members and messages.
//
// A context may be nested one level under a parent; the child's slug is
// composed as "parent-slug/child-slug".
type Context struct {
	ID        int64     `bson:"_id" json:"id"`
	ParentID  *int64    `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Name      string    `bson:"name" json:"name"`
	Slug      string    `bson:"slug" json:"slug"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
