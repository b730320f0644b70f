// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"time"

	"github.com/dalemusser/organizer/internal/app/system/digest"
)

// AppConfig holds organizer-specific configuration. Framework settings
// (ports, TLS, log level) live in WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI      string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase string // Database name within MongoDB

	// Outbound mail
	MailTransport  string // "smtp", "sendgrid" or "none"
	MailSMTPHost   string // SMTP server host (e.g., localhost for Mailpit)
	MailSMTPPort   int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser   string
	MailSMTPPass   string
	SendGridAPIKey string
	EmailFrom      string // From header for digests, e.g. "Organizer <digest@example.org>"
	ReplyFrom      string // address that receives replies to notifications

	// Base URL for links in emails
	BaseURL string // e.g., "https://organizer.example.org"

	// Digest batch
	DigestInterval time.Duration // zero disables the in-process scheduler
	DigestLookback time.Duration
	DigestAdvance  digest.AdvancePolicy

	FanoutTimeout time.Duration

	// InboundRateLimit caps webhook requests per client IP per minute; zero
	// disables the limit.
	InboundRateLimit int
}
