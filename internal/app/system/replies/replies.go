// internal/app/system/replies/replies.go
package replies

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dalemusser/organizer/internal/app/system/htmlsanitize"
	"github.com/dalemusser/organizer/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	messageIDHeader = regexp.MustCompile(`(?im)^Message-Id:\s*<([^@>\s]+)@`)
	inReplyToHeader = regexp.MustCompile(`(?im)^In-Reply-To:\s*<([^@>\s]+)@`)

	quoteLine     = regexp.MustCompile(`^>`)
	delimiterLine = regexp.MustCompile(`^(>\s*)*---\s*$`)
)

// Payload is one inbound email as delivered by the webhook.
type Payload struct {
	Headers string `json:"headers"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Result is the outcome reported to the webhook caller.
type Result struct {
	OK        bool   `json:"ok"`
	MessageID int64  `json:"message_id,omitempty"`
	Status    string `json:"-"`
}

// InboundStore keeps one audit record per inbound email id; Save replaces
// any earlier record with the same id.
type InboundStore interface {
	Save(ctx context.Context, rec models.InboundRecord) error
	GetByID(ctx context.Context, id string) (*models.InboundRecord, error)
}

// TicketReader loads the ticket a reply answers.
type TicketReader interface {
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
}

// MessageReader loads the message a ticket points at.
type MessageReader interface {
	GetByID(ctx context.Context, id int64) (*models.Message, error)
}

// Poster creates a message through the normal path, which also notifies the
// context's members.
type Poster interface {
	SendMessage(ctx context.Context, personID, contextID int64, inReplyTo *int64, content string) (models.Message, error)
}

// Deps are the collaborators an Engine needs.
type Deps struct {
	Inbound  InboundStore
	Tickets  TicketReader
	Messages MessageReader
	Poster   Poster
}

// Engine turns inbound reply emails into messages.
type Engine struct {
	d   Deps
	log *zap.Logger
}

// New builds an Engine.
func New(d Deps, logger *zap.Logger) *Engine {
	return &Engine{d: d, log: logger}
}

// ParseIdentifiers extracts the local parts of the Message-Id and
// In-Reply-To headers. Either may be empty.
func ParseIdentifiers(headers string) (messageID, inReplyTo string) {
	if m := messageIDHeader.FindStringSubmatch(headers); m != nil {
		messageID = m[1]
	}
	if m := inReplyToHeader.FindStringSubmatch(headers); m != nil {
		inReplyTo = m[1]
	}
	return messageID, inReplyTo
}

// StripQuoted removes quoted text from a reply body. Quote lines are kept
// only when some later non-quote line follows them, so inline answers
// survive while a trailing quoted block is dropped. A "---" delimiter line,
// optionally quoted, ends the reply.
func StripQuoted(body string) string {
	body = strings.TrimSpace(strings.ReplaceAll(body, "\r\n", "\n"))
	lines := strings.Split(body, "\n")
	var kept, quoted []string
	for _, line := range lines {
		if delimiterLine.MatchString(line) {
			break
		}
		if quoteLine.MatchString(line) {
			quoted = append(quoted, line)
			continue
		}
		kept = append(kept, quoted...)
		quoted = quoted[:0]
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Ingest correlates one inbound reply with the notification it answers and
// posts it as a reply. It never panics on malformed input; every payload
// leaves an audit record, best-effort.
func (e *Engine) Ingest(ctx context.Context, p Payload) Result {
	raw, err := json.Marshal(p)
	if err != nil {
		raw = []byte(`{}`)
	}
	rec := models.InboundRecord{MessageID: models.NoID, PersonID: models.NoID, Payload: string(raw)}

	emailID, parentID := ParseIdentifiers(p.Headers)
	rec.ID = emailID
	if emailID == "" {
		rec.ID = uuid.NewString()
	}
	log := e.log.With(zap.String("email_id", rec.ID))

	if emailID == "" || parentID == "" {
		log.Info("inbound reply missing identifiers",
			zap.Bool("has_message_id", emailID != ""),
			zap.Bool("has_in_reply_to", parentID != ""))
		return e.finish(ctx, log, rec, models.InboundUnparsable)
	}

	prior, err := e.d.Inbound.GetByID(ctx, emailID)
	if err != nil {
		log.Error("load inbound record failed", zap.Error(err))
		return Result{OK: false, Status: models.InboundFailed}
	}
	if prior != nil && prior.Status != models.InboundFailed {
		log.Info("inbound reply already processed", zap.String("status", prior.Status))
		return resultFor(prior.Status, prior.MessageID)
	}

	body := p.Text
	if strings.TrimSpace(body) == "" && p.HTML != "" {
		body = htmlsanitize.StripTags(p.HTML)
	}
	content := StripQuoted(body)
	if content == "" {
		log.Info("inbound reply has no content")
		return e.finish(ctx, log, rec, models.InboundUnparsable)
	}

	ticket, err := e.lookupTicket(ctx, parentID)
	if err != nil {
		log.Error("ticket lookup failed", zap.Error(err))
		return e.finish(ctx, log, rec, models.InboundFailed)
	}
	if ticket == nil {
		log.Info("inbound reply matches no ticket", zap.String("in_reply_to", parentID))
		return e.finish(ctx, log, rec, models.InboundUncorrelated)
	}
	rec.PersonID = ticket.PersonID
	log = log.With(zap.Int64("person_id", ticket.PersonID), zap.Int64("context_id", ticket.ContextID))

	target, err := e.d.Messages.GetByID(ctx, ticket.MessageID)
	if err != nil {
		log.Error("load replied-to message failed", zap.Error(err))
		return e.finish(ctx, log, rec, models.InboundFailed)
	}
	if target == nil {
		log.Info("replied-to message no longer exists", zap.Int64("message_id", ticket.MessageID))
		return e.finish(ctx, log, rec, models.InboundUncorrelated)
	}
	threadID := target.ID
	if target.InReplyTo != nil {
		threadID = *target.InReplyTo
	}

	msg, err := e.d.Poster.SendMessage(ctx, ticket.PersonID, ticket.ContextID, &threadID, content)
	if err != nil {
		log.Error("create reply message failed", zap.Error(err))
		return e.finish(ctx, log, rec, models.InboundFailed)
	}
	rec.MessageID = msg.ID
	log.Info("inbound reply posted", zap.Int64("message_id", msg.ID), zap.Int64("in_reply_to", threadID))
	return e.finish(ctx, log, rec, models.InboundCreated)
}

// lookupTicket finds the ticket for an In-Reply-To local part. Some
// providers append ".suffix" to the id they report at send time, so a miss
// is retried with the part before the first dot.
func (e *Engine) lookupTicket(ctx context.Context, id string) (*models.Ticket, error) {
	t, err := e.d.Tickets.GetByID(ctx, id)
	if err != nil || t != nil {
		return t, err
	}
	if i := strings.IndexByte(id, '.'); i > 0 {
		return e.d.Tickets.GetByID(ctx, id[:i])
	}
	return nil, nil
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, rec models.InboundRecord, status string) Result {
	rec.Status = status
	if err := e.d.Inbound.Save(ctx, rec); err != nil {
		log.Warn("record inbound reply failed", zap.String("status", status), zap.Error(err))
	}
	return resultFor(status, rec.MessageID)
}

func resultFor(status string, messageID int64) Result {
	switch status {
	case models.InboundCreated:
		return Result{OK: true, MessageID: messageID, Status: status}
	case models.InboundUncorrelated:
		return Result{OK: true, Status: status}
	default:
		return Result{OK: false, Status: status}
	}
}
