// internal/app/system/notify/notify.go
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/organizer/internal/app/system/links"
	"github.com/dalemusser/organizer/internal/app/system/mailer"
	"github.com/dalemusser/organizer/internal/app/system/summary"
	"github.com/dalemusser/organizer/internal/app/system/timeouts"
	"github.com/dalemusser/organizer/internal/domain/models"
	"go.uber.org/zap"
)

// MessageStore persists and loads messages.
type MessageStore interface {
	Insert(ctx context.Context, personID, contextID int64, inReplyTo *int64, content string) (models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
}

// PersonReader loads message authors.
type PersonReader interface {
	GetByID(ctx context.Context, id int64) (*models.Person, error)
}

// RecipientLister lists the active members of a context other than one person.
type RecipientLister interface {
	ActiveMembers(ctx context.Context, contextID, excludePersonID int64) ([]models.Recipient, error)
}

// PreferenceReader batch-loads member email preferences. Members without an
// explicit preference are absent from the result.
type PreferenceReader interface {
	EmailPreferences(ctx context.Context, memberIDs []int64) (map[int64]models.EmailPreference, error)
}

// TicketWriter records delivered notifications.
type TicketWriter interface {
	Insert(ctx context.Context, t models.Ticket) error
}

// MemberToucher marks a member as recently active.
type MemberToucher interface {
	Touch(ctx context.Context, personID, contextID int64) error
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, e mailer.Email) (mailer.Receipt, error)
}

// Deps are the collaborators a Notifier needs.
type Deps struct {
	Messages   MessageStore
	Persons    PersonReader
	Recipients RecipientLister
	Prefs      PreferenceReader
	Tickets    TicketWriter
	Members    MemberToucher
	Mail       Sender
}

// Config controls how notifications are addressed.
type Config struct {
	BaseURL   string
	ReplyFrom string // header whose address receives email replies

	// FanoutTimeout bounds one background fan-out. Zero uses timeouts.Fanout().
	FanoutTimeout time.Duration
}

// FanoutResult counts what happened to one message's notifications.
type FanoutResult struct {
	Recipients int // active members other than the author
	Sent       int
	Skipped    int // preference was digest or none, or mail is disabled
	Failed     int
	Tickets    int
}

// Notifier creates messages and emails the members of their context.
type Notifier struct {
	d     Deps
	cfg   Config
	links links.Builder
	log   *zap.Logger
	wg    sync.WaitGroup
}

// New builds a Notifier. Call Wait before shutdown to drain fan-outs.
func New(d Deps, cfg Config, logger *zap.Logger) *Notifier {
	return &Notifier{d: d, cfg: cfg, links: links.New(cfg.BaseURL), log: logger}
}

// SendMessage stores a new message and returns it. Notifications are sent in
// the background after SendMessage returns; a delivery failure never fails
// the message.
func (n *Notifier) SendMessage(ctx context.Context, personID, contextID int64, inReplyTo *int64, content string) (models.Message, error) {
	msg, err := n.d.Messages.Insert(ctx, personID, contextID, inReplyTo, content)
	if err != nil {
		return models.Message{}, err
	}

	n.wg.Add(1)
	go n.fanout(ctx, msg)

	if n.d.Members != nil {
		if err := n.d.Members.Touch(ctx, personID, contextID); err != nil {
			n.log.Warn("touch member failed",
				zap.Int64("person_id", personID),
				zap.Int64("context_id", contextID),
				zap.Error(err))
		}
	}
	return msg, nil
}

// Wait blocks until every background fan-out has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) fanout(parent context.Context, msg models.Message) {
	defer n.wg.Done()

	d := n.cfg.FanoutTimeout
	if d <= 0 {
		d = timeouts.Fanout()
	}
	ctx, cancel := timeouts.WithTimeout(context.WithoutCancel(parent), d, n.log, "notification fan-out")
	defer cancel()

	log := n.log.With(zap.Int64("message_id", msg.ID), zap.Int64("context_id", msg.ContextID))

	sender, err := n.d.Persons.GetByID(ctx, msg.PersonID)
	if err != nil {
		log.Error("load sender failed", zap.Error(err))
		return
	}
	if sender == nil {
		log.Warn("sender not found; no notifications sent", zap.Int64("person_id", msg.PersonID))
		return
	}

	res, err := n.NotifyNewMessage(ctx, *sender, msg)
	if err != nil {
		log.Error("fan-out failed", zap.Error(err))
		return
	}
	log.Info("fan-out complete",
		zap.Int("recipients", res.Recipients),
		zap.Int("sent", res.Sent),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int("tickets", res.Tickets))
}

// NotifyNewMessage emails every active member of msg's context except the
// sender whose preference is send (or unset). Load errors are returned;
// per-recipient delivery errors are logged and counted.
func (n *Notifier) NotifyNewMessage(ctx context.Context, sender models.Person, msg models.Message) (FanoutResult, error) {
	var res FanoutResult

	recipients, err := n.d.Recipients.ActiveMembers(ctx, msg.ContextID, sender.ID)
	if err != nil {
		return res, err
	}
	res.Recipients = len(recipients)
	if len(recipients) == 0 {
		return res, nil
	}

	ids := make([]int64, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.MemberID)
	}
	prefs, err := n.d.Prefs.EmailPreferences(ctx, ids)
	if err != nil {
		return res, err
	}

	var parentContent string
	if msg.InReplyTo != nil {
		parent, err := n.d.Messages.GetByID(ctx, *msg.InReplyTo)
		if err != nil {
			return res, err
		}
		if parent != nil {
			parentContent = parent.Content
		}
	}
	subject := summary.Subject(msg, parentContent)
	from := mailer.FromHeader(sender.DisplayName(), n.cfg.ReplyFrom)

	for i, r := range recipients {
		if p, ok := prefs[r.MemberID]; ok && p != models.EmailSend {
			res.Skipped++
			continue
		}

		email := mailer.BuildNotificationEmail(mailer.NotificationEmailData{
			Subject:        subject,
			Content:        msg.Content,
			MessageLink:    n.links.Message(r.ContextSlug, msg),
			SettingsLink:   n.links.Settings(),
			ContextName:    r.ContextName,
			UnsubscribeURL: n.links.Leave(r.LeaveSlug),
		})
		email.To = r.Email
		email.From = from

		rcpt, err := n.d.Mail.Send(ctx, email)
		if errors.Is(err, mailer.ErrNotConfigured) {
			n.log.Info("mail transport not configured; notifications skipped",
				zap.Int64("message_id", msg.ID))
			res.Skipped += len(recipients) - i
			break
		}
		if err != nil {
			res.Failed++
			n.log.Warn("notification send failed",
				zap.Int64("message_id", msg.ID),
				zap.Int64("person_id", r.PersonID),
				zap.Error(err))
			continue
		}
		res.Sent++

		if rcpt.MessageID == "" {
			continue
		}
		t := models.Ticket{
			ID:        rcpt.MessageID,
			ContextID: msg.ContextID,
			MessageID: msg.ID,
			PersonID:  r.PersonID,
		}
		if err := n.d.Tickets.Insert(ctx, t); err != nil {
			n.log.Warn("record email ticket failed",
				zap.String("email_id", rcpt.MessageID),
				zap.Int64("message_id", msg.ID),
				zap.Int64("person_id", r.PersonID),
				zap.Error(err))
			continue
		}
		res.Tickets++
	}
	return res, nil
}
