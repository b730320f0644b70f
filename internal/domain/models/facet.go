// internal/domain/models/facet.go
package models

import (
	"sort"
	"strconv"
	"time"
)

// TargetType names the kind of entity a facet annotates.
type TargetType string

const (
	TargetPerson  TargetType = "person"
	TargetMember  TargetType = "member"
	TargetMessage TargetType = "message"
)

// FacetMode distinguishes latest-write-wins facets from append-only history.
type FacetMode string

const (
	// SingleValued facets keep only the newest row per key.
	SingleValued FacetMode = "single"
	// AppendOnly facets keep every row, ordered by Seq.
	AppendOnly FacetMode = "append"
)

// FacetKind pairs a facet type name with its storage mode.
type FacetKind struct {
	Type string
	Mode FacetMode
}

// EmailFacet is the per-member email preference.
var EmailFacet = FacetKind{Type: "email", Mode: SingleValued}

// RevisionFacet is the per-message edit history.
var RevisionFacet = FacetKind{Type: "revision", Mode: AppendOnly}

const watermarkPrefix = "last_digest_message_"

// WatermarkFacet is the per-person digest cursor for one context.
func WatermarkFacet(contextID int64) FacetKind {
	return FacetKind{Type: watermarkPrefix + strconv.FormatInt(contextID, 10), Mode: SingleValued}
}

// Facet is one stored facet row.
type Facet struct {
	TargetID   int64      `bson:"target_id" json:"target_id"`
	TargetType TargetType `bson:"target_type" json:"target_type"`
	FacetType  string     `bson:"facet_type" json:"facet_type"`
	Mode       FacetMode  `bson:"mode" json:"mode"`
	Seq        int        `bson:"seq" json:"seq"` // 0 for single-valued rows
	Content    string     `bson:"content" json:"content"`
	// Timestamp is the time the content was current; set on revisions.
	Timestamp time.Time `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| Variants                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// EmailPreference selects how a member hears about new messages.
type EmailPreference string

const (
	EmailSend   EmailPreference = "send"
	EmailDigest EmailPreference = "digest"
	EmailNone   EmailPreference = "none"
)

// ParseEmailPreference validates a stored or submitted preference value.
func ParseEmailPreference(s string) (EmailPreference, bool) {
	switch EmailPreference(s) {
	case EmailSend, EmailDigest, EmailNone:
		return EmailPreference(s), true
	}
	return "", false
}

// Revision is a prior content snapshot of an edited message.
type Revision struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DigestWatermark is the id of the last message included in a digest for
// one (person, context).
type DigestWatermark struct {
	ContextID int64 `json:"context_id"`
	MessageID int64 `json:"message_id"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| Reconstruction                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// FacetSet is the current view of every facet on one target.
type FacetSet struct {
	Single map[string]string  // facet_type -> newest content
	Lists  map[string][]Facet // facet_type -> rows ordered by Seq
}

// BuildFacetSet reconstructs the single-value map and ordered lists from the
// raw rows of one target. Rows may arrive in any order.
func BuildFacetSet(rows []Facet) FacetSet {
	set := FacetSet{
		Single: make(map[string]string),
		Lists:  make(map[string][]Facet),
	}
	latest := make(map[string]time.Time)
	for _, f := range rows {
		switch f.Mode {
		case AppendOnly:
			set.Lists[f.FacetType] = append(set.Lists[f.FacetType], f)
		default:
			if prev, ok := latest[f.FacetType]; ok && f.UpdatedAt.Before(prev) {
				continue
			}
			latest[f.FacetType] = f.UpdatedAt
			set.Single[f.FacetType] = f.Content
		}
	}
	for k := range set.Lists {
		list := set.Lists[k]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	}
	return set
}

// EmailPreference returns the member's preference. Absence means send.
func (s FacetSet) EmailPreference() EmailPreference {
	return EffectivePreference(s.Single[EmailFacet.Type])
}

// Revisions returns the edit history, oldest first.
func (s FacetSet) Revisions() []Revision {
	rows := s.Lists[RevisionFacet.Type]
	out := make([]Revision, 0, len(rows))
	for _, f := range rows {
		out = append(out, Revision{Content: f.Content, Timestamp: f.Timestamp})
	}
	return out
}

// Watermark returns the digest cursor for a context, if one is set.
func (s FacetSet) Watermark(contextID int64) (DigestWatermark, bool) {
	v, ok := s.Single[WatermarkFacet(contextID).Type]
	if !ok {
		return DigestWatermark{}, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return DigestWatermark{}, false
	}
	return DigestWatermark{ContextID: contextID, MessageID: id}, true
}

// EffectivePreference maps a raw stored value to a preference. Empty or
// unrecognized values fail open to EmailSend.
func EffectivePreference(raw string) EmailPreference {
	if p, ok := ParseEmailPreference(raw); ok {
		return p
	}
	return EmailSend
}
