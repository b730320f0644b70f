// internal/domain/models/person.go
package models

import "time"

// Person is an identity created on first login-link request.
//
// NOTE:
//   - Email is stored normalized (trimmed, lowercased) and is unique.
//   - Persons are never hard-deleted.
//   - ContextID is the "current context" pointer and may be nil.
type Person struct {
	ID        int64     `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Slug      string    `bson:"slug" json:"slug"`
	Name      string    `bson:"name" json:"name"`
	NameCI    string    `bson:"name_ci" json:"name_ci"` // lowercase, diacritics-stripped
	ContextID *int64    `bson:"context_id,omitempty" json:"context_id,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DisplayName returns the name to show in From headers and digests,
// falling back to the slug when no name has been set.
func (p Person) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Slug
}
