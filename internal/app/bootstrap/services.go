// internal/app/bootstrap/services.go
package bootstrap

import (
	contextstore "github.com/dalemusser/organizer/internal/app/store/contexts"
	inboundstore "github.com/dalemusser/organizer/internal/app/store/emailrx"
	ticketstore "github.com/dalemusser/organizer/internal/app/store/emailtx"
	facetstore "github.com/dalemusser/organizer/internal/app/store/facets"
	memberstore "github.com/dalemusser/organizer/internal/app/store/members"
	messagestore "github.com/dalemusser/organizer/internal/app/store/messages"
	personstore "github.com/dalemusser/organizer/internal/app/store/persons"
	"github.com/dalemusser/organizer/internal/app/store/queries/digestmembers"
	"github.com/dalemusser/organizer/internal/app/store/queries/recipients"
	"github.com/dalemusser/organizer/internal/app/system/digest"
	"github.com/dalemusser/organizer/internal/app/system/mailer"
	"github.com/dalemusser/organizer/internal/app/system/notify"
	"github.com/dalemusser/organizer/internal/app/system/replies"
	"go.uber.org/zap"
)

// Services is the set of engines built from one database connection.
type Services struct {
	Persons  *personstore.Store
	Contexts *contextstore.Store
	Members  *memberstore.Store

	Mail     *mailer.Mailer
	MailName string // transport name reported by /health

	Notifier *notify.Notifier
	Digest   *digest.Runner
	Replies  *replies.Engine
}

// NewTransport returns the configured mail transport, or nil when mail is
// disabled.
func NewTransport(appCfg AppConfig) mailer.Transport {
	switch appCfg.MailTransport {
	case "sendgrid":
		return mailer.NewSendGrid(appCfg.SendGridAPIKey)
	case "smtp":
		return mailer.NewSMTP(mailer.SMTPConfig{
			Host:     appCfg.MailSMTPHost,
			Port:     appCfg.MailSMTPPort,
			Username: appCfg.MailSMTPUser,
			Password: appCfg.MailSMTPPass,
		})
	}
	return nil
}

// BuildServices wires stores and engines over deps.MongoDatabase.
func BuildServices(appCfg AppConfig, deps DBDeps, logger *zap.Logger) *Services {
	db := deps.MongoDatabase

	transport := NewTransport(appCfg)
	mailName := "none"
	if transport != nil {
		mailName = transport.Name()
	}
	mail := mailer.New(transport, appCfg.EmailFrom, logger)

	persons := personstore.New(db)
	contexts := contextstore.New(db)
	members := memberstore.New(db)
	messages := messagestore.New(db)
	facets := facetstore.New(db)

	notifier := notify.New(notify.Deps{
		Messages:   messages,
		Persons:    persons,
		Recipients: recipients.New(db),
		Prefs:      facets,
		Tickets:    ticketstore.New(db),
		Members:    members,
		Mail:       mail,
	}, notify.Config{
		BaseURL:       appCfg.BaseURL,
		ReplyFrom:     appCfg.ReplyFrom,
		FanoutTimeout: appCfg.FanoutTimeout,
	}, logger)

	runner := digest.New(digest.Deps{
		Eligible:   digestmembers.New(db),
		Persons:    persons,
		Contexts:   contexts,
		Messages:   messages,
		Watermarks: facets,
		Mail:       mail,
	}, digest.Config{
		BaseURL:  appCfg.BaseURL,
		Lookback: appCfg.DigestLookback,
		Advance:  appCfg.DigestAdvance,
	}, logger)

	engine := replies.New(replies.Deps{
		Inbound:  inboundstore.New(db),
		Tickets:  ticketstore.New(db),
		Messages: messages,
		Poster:   notifier,
	}, logger)

	return &Services{
		Persons:  persons,
		Contexts: contexts,
		Members:  members,
		Mail:     mail,
		MailName: mailName,
		Notifier: notifier,
		Digest:   runner,
		Replies:  engine,
	}
}
