// internal/app/system/digest/digest.go
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/organizer/internal/app/system/links"
	"github.com/dalemusser/organizer/internal/app/system/mailer"
	"github.com/dalemusser/organizer/internal/app/system/summary"
	"github.com/dalemusser/organizer/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultLookback is how far back a digest looks for messages.
const DefaultLookback = 24 * time.Hour

// AdvancePolicy decides when a digest watermark moves relative to the send.
type AdvancePolicy string

const (
	// AdvanceBeforeSend moves the watermark before sending. A failed send
	// is not retried, so a digest is delivered at most once.
	AdvanceBeforeSend AdvancePolicy = "before_send"
	// AdvanceAfterSend moves the watermark only after the send succeeds.
	// A crash between send and advance can repeat a digest.
	AdvanceAfterSend AdvancePolicy = "after_send"
)

// ParseAdvancePolicy validates a configured policy. Empty means
// AdvanceBeforeSend.
func ParseAdvancePolicy(s string) (AdvancePolicy, error) {
	switch AdvancePolicy(s) {
	case "", AdvanceBeforeSend:
		return AdvanceBeforeSend, nil
	case AdvanceAfterSend:
		return AdvanceAfterSend, nil
	}
	return "", fmt.Errorf("digest advance policy %q: want %q or %q", s, AdvanceBeforeSend, AdvanceAfterSend)
}

// EligibleLister lists active memberships whose preference is digest.
type EligibleLister interface {
	ListDigestEligible(ctx context.Context) ([]models.DigestMembership, error)
}

// PersonReader loads digest recipients.
type PersonReader interface {
	GetByID(ctx context.Context, id int64) (*models.Person, error)
}

// ContextReader loads a context for its name and slug.
type ContextReader interface {
	GetByID(ctx context.Context, id int64) (*models.Context, error)
}

// MessageReader selects unseen messages and resolves reply parents.
type MessageReader interface {
	ListUnseen(ctx context.Context, q models.UnseenQuery) ([]models.DigestEntry, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Message, error)
}

// WatermarkStore reads and compare-and-sets the per (person, context) cursor.
type WatermarkStore interface {
	Watermark(ctx context.Context, personID, contextID int64) (models.DigestWatermark, bool, error)
	AdvanceWatermark(ctx context.Context, personID, contextID int64, prev *models.DigestWatermark, next int64) (bool, error)
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, e mailer.Email) (mailer.Receipt, error)
}

// Deps are the collaborators a Runner needs.
type Deps struct {
	Eligible   EligibleLister
	Persons    PersonReader
	Contexts   ContextReader
	Messages   MessageReader
	Watermarks WatermarkStore
	Mail       Sender
}

// Config controls digest selection and links.
type Config struct {
	BaseURL  string
	Lookback time.Duration // zero uses DefaultLookback
	Advance  AdvancePolicy // empty uses AdvanceBeforeSend
}

// Result summarizes one batch.
type Result struct {
	Persons  int // persons with at least one digest membership
	Sent     int // digest emails delivered
	Failed   int // persons whose digest could not be built or sent
	Messages int // messages included in delivered digests
}

// Runner builds and sends one digest email per person.
type Runner struct {
	d        Deps
	links    links.Builder
	lookback time.Duration
	advance  AdvancePolicy
	log      *zap.Logger

	Now func() time.Time
}

// New builds a Runner with defaults applied for zero Config fields.
func New(d Deps, cfg Config, logger *zap.Logger) *Runner {
	r := &Runner{
		d:        d,
		links:    links.New(cfg.BaseURL),
		lookback: cfg.Lookback,
		advance:  cfg.Advance,
		log:      logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
	if r.lookback <= 0 {
		r.lookback = DefaultLookback
	}
	if r.advance == "" {
		r.advance = AdvanceBeforeSend
	}
	return r
}

// pending is one context's contribution to a person's digest.
type pending struct {
	contextID int64
	section   mailer.DigestSectionData
	prev      *models.DigestWatermark
	last      int64
}

// Run sends the digest batch. Only a failure to list eligible memberships is
// returned; failures for one person are logged and counted in Result.Failed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result

	rows, err := r.d.Eligible.ListDigestEligible(ctx)
	if err != nil {
		return res, fmt.Errorf("list digest members: %w", err)
	}

	order, byPerson := groupByPerson(rows)
	res.Persons = len(order)

	for _, personID := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := r.runPerson(ctx, personID, byPerson[personID])
		if err != nil {
			res.Failed++
			r.log.Warn("digest failed",
				zap.Int64("person_id", personID),
				zap.Error(err))
			continue
		}
		if n > 0 {
			res.Sent++
			res.Messages += n
		}
	}

	r.log.Info("digest batch complete",
		zap.Int("persons", res.Persons),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("messages", res.Messages))
	return res, nil
}

func groupByPerson(rows []models.DigestMembership) ([]int64, map[int64][]int64) {
	var order []int64
	by := make(map[int64][]int64)
	for _, row := range rows {
		if _, seen := by[row.PersonID]; !seen {
			order = append(order, row.PersonID)
		}
		by[row.PersonID] = append(by[row.PersonID], row.ContextID)
	}
	return order, by
}

// runPerson sends one person's digest and returns the number of messages
// it contained (0 when nothing was sent).
func (r *Runner) runPerson(ctx context.Context, personID int64, contextIDs []int64) (int, error) {
	person, err := r.d.Persons.GetByID(ctx, personID)
	if err != nil {
		return 0, err
	}
	if person == nil {
		r.log.Warn("digest person not found", zap.Int64("person_id", personID))
		return 0, nil
	}

	since := r.Now().Add(-r.lookback)
	var parts []pending
	for _, contextID := range contextIDs {
		p, ok, err := r.collect(ctx, personID, contextID, since)
		if err != nil {
			return 0, fmt.Errorf("context %d: %w", contextID, err)
		}
		if ok {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return 0, nil
	}

	if r.advance == AdvanceBeforeSend {
		parts, err = r.advanceAll(ctx, personID, parts)
		if err != nil {
			return 0, err
		}
		if len(parts) == 0 {
			return 0, nil
		}
	}

	data := mailer.DigestEmailData{SettingsLink: r.links.Settings()}
	for _, p := range parts {
		data.Sections = append(data.Sections, p.section)
	}
	email := mailer.BuildDigestEmail(data)
	email.To = person.Email

	if _, err := r.d.Mail.Send(ctx, email); err != nil {
		return 0, fmt.Errorf("send digest: %w", err)
	}

	if r.advance == AdvanceAfterSend {
		// The digest is out; a failed advance means it may be repeated.
		if _, err := r.advanceAll(ctx, personID, parts); err != nil {
			r.log.Warn("digest sent but watermark not advanced",
				zap.Int64("person_id", personID),
				zap.Error(err))
		}
	}
	return data.MessageCount(), nil
}

// collect builds the section for one context. ok is false when the context
// has nothing new.
func (r *Runner) collect(ctx context.Context, personID, contextID int64, since time.Time) (pending, bool, error) {
	c, err := r.d.Contexts.GetByID(ctx, contextID)
	if err != nil {
		return pending{}, false, err
	}
	if c == nil {
		return pending{}, false, nil
	}

	wm, hasWM, err := r.d.Watermarks.Watermark(ctx, personID, contextID)
	if err != nil {
		return pending{}, false, err
	}
	q := models.UnseenQuery{ContextID: contextID, ExcludePersonID: personID, Since: since}
	var prev *models.DigestWatermark
	if hasWM {
		prev = &wm
		q.AfterID = &wm.MessageID
	}

	entries, err := r.d.Messages.ListUnseen(ctx, q)
	if err != nil {
		return pending{}, false, err
	}
	if len(entries) == 0 {
		return pending{}, false, nil
	}

	var parentIDs []int64
	for _, e := range entries {
		if e.InReplyTo != nil {
			parentIDs = append(parentIDs, *e.InReplyTo)
		}
	}
	parents, err := r.d.Messages.GetByIDs(ctx, parentIDs)
	if err != nil {
		return pending{}, false, err
	}

	p := pending{contextID: contextID, section: mailer.DigestSectionData{ContextName: c.Name}, prev: prev}
	for _, e := range entries {
		entry := mailer.DigestEntryData{
			AuthorName:  e.AuthorName,
			Created:     e.CreatedAt,
			Content:     e.Content,
			MessageLink: r.links.Message(c.Slug, e.Message),
		}
		if e.InReplyTo != nil {
			if parent, ok := parents[*e.InReplyTo]; ok {
				entry.ReplySnippet = summary.Snippet(parent.Content, summary.MaxSubject)
			}
		}
		p.section.Entries = append(p.section.Entries, entry)
		if e.ID > p.last {
			p.last = e.ID
		}
	}
	return p, true, nil
}

// advanceAll moves each context's watermark to its last message. Contexts
// whose cursor was moved by someone else since it was read are dropped from
// the returned slice.
func (r *Runner) advanceAll(ctx context.Context, personID int64, parts []pending) ([]pending, error) {
	kept := parts[:0]
	for _, p := range parts {
		moved, err := r.d.Watermarks.AdvanceWatermark(ctx, personID, p.contextID, p.prev, p.last)
		if err != nil {
			return nil, fmt.Errorf("advance watermark: %w", err)
		}
		if !moved {
			r.log.Warn("digest watermark changed concurrently; section dropped",
				zap.Int64("person_id", personID),
				zap.Int64("context_id", p.contextID),
				zap.Int64("message_id", p.last))
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}
