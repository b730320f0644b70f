// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/organizer/internal/app/system/digest"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys are read from config files, ORGANIZER_* environment
// variables and --flags, in increasing precedence.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "organizer", Desc: "MongoDB database name"},

	// Outbound mail
	{Name: "mail_transport", Default: "smtp", Desc: "Mail transport: 'smtp', 'sendgrid' or 'none'"},
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "sendgrid_api_key", Default: "", Desc: "SendGrid API key (mail_transport=sendgrid)"},
	{Name: "email_from", Default: "Organizer <digest@localhost>", Desc: "From header for digest emails"},
	{Name: "reply_from", Default: "reply@localhost", Desc: "Address that receives replies to notifications"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for email links"},

	// Digest batch
	{Name: "digest_interval", Default: "0s", Desc: "How often the digest batch runs in-process (0 disables; use cmd/digest from cron)"},
	{Name: "digest_lookback", Default: "24h", Desc: "How far back a digest looks for messages"},
	{Name: "digest_advance", Default: "before_send", Desc: "When the digest watermark moves: 'before_send' or 'after_send'"},

	{Name: "fanout_timeout", Default: "2m", Desc: "Upper bound on one message's background notification fan-out"},
	{Name: "inbound_rate_limit", Default: 120, Desc: "Inbound webhook requests per client IP per minute (0 disables)"},
}

// LoadConfig loads WAFFLE core config and organizer config.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "ORGANIZER", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	advance, err := digest.ParseAdvancePolicy(appValues.String("digest_advance"))
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:      appValues.String("mongo_uri"),
		MongoDatabase: appValues.String("mongo_database"),

		MailTransport:  appValues.String("mail_transport"),
		MailSMTPHost:   appValues.String("mail_smtp_host"),
		MailSMTPPort:   appValues.Int("mail_smtp_port"),
		MailSMTPUser:   appValues.String("mail_smtp_user"),
		MailSMTPPass:   appValues.String("mail_smtp_pass"),
		SendGridAPIKey: appValues.String("sendgrid_api_key"),
		EmailFrom:      appValues.String("email_from"),
		ReplyFrom:      appValues.String("reply_from"),

		BaseURL: appValues.String("base_url"),

		DigestInterval: appValues.Duration("digest_interval", 0),
		DigestLookback: appValues.Duration("digest_lookback", digest.DefaultLookback),
		DigestAdvance:  advance,

		FanoutTimeout:    appValues.Duration("fanout_timeout", 2*time.Minute),
		InboundRateLimit: appValues.Int("inbound_rate_limit"),
	}
	return coreCfg, appCfg, nil
}

// ValidateConfig rejects configurations that cannot work before anything
// connects.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	switch appCfg.MailTransport {
	case "smtp":
		if appCfg.MailSMTPHost == "" {
			return fmt.Errorf("mail_transport=smtp requires mail_smtp_host")
		}
	case "sendgrid":
		if appCfg.SendGridAPIKey == "" {
			return fmt.Errorf("mail_transport=sendgrid requires sendgrid_api_key")
		}
	case "none":
		logger.Warn("mail transport disabled; notifications and digests will not be delivered")
	default:
		return fmt.Errorf("unknown mail_transport %q: want smtp, sendgrid or none", appCfg.MailTransport)
	}

	if appCfg.InboundRateLimit < 0 {
		return fmt.Errorf("inbound_rate_limit must not be negative")
	}
	if appCfg.DigestInterval < 0 {
		return fmt.Errorf("digest_interval must not be negative")
	}
	return nil
}
