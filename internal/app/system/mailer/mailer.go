// internal/app/system/mailer/mailer.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when no transport has been configured.
// It is distinct from a *SendError, which means a transport tried and failed.
var ErrNotConfigured = errors.New("mailer: no transport configured")

var errNoRecipient = errors.New("mailer: email has no recipient")

// Email is a single outbound message.
type Email struct {
	To       string
	From     string // optional; defaults to the Mailer's From
	Subject  string
	TextBody string
	HTMLBody string // optional
}

// Receipt describes a delivered email.
//
// MessageID is the provider-assigned identifier when the transport surfaces
// one. It is the value an inbound reply's In-Reply-To header echoes back.
type Receipt struct {
	MessageID string
}

// SendError wraps a failure reported by a transport.
type SendError struct {
	Transport string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("mailer: %s send failed: %v", e.Transport, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transport delivers one email.
type Transport interface {
	Name() string
	Send(ctx context.Context, e Email) (Receipt, error)
}

// Mailer applies defaults and delegates to a Transport.
type Mailer struct {
	transport Transport
	from      string
	log       *zap.Logger
}

// New returns a Mailer. A nil transport yields a Mailer whose Send always
// returns ErrNotConfigured.
func New(t Transport, from string, logger *zap.Logger) *Mailer {
	return &Mailer{transport: t, from: from, log: logger}
}

// From returns the configured default From header.
func (m *Mailer) From() string {
	return m.from
}

// Send delivers e, filling in the default From when e.From is empty.
func (m *Mailer) Send(ctx context.Context, e Email) (Receipt, error) {
	if m == nil || m.transport == nil {
		return Receipt{}, ErrNotConfigured
	}
	if strings.TrimSpace(e.To) == "" {
		return Receipt{}, errNoRecipient
	}
	if e.From == "" {
		e.From = m.from
	}

	rcpt, err := m.transport.Send(ctx, e)
	if err != nil {
		var se *SendError
		if !errors.As(err, &se) && !errors.Is(err, ErrNotConfigured) {
			err = &SendError{Transport: m.transport.Name(), Err: err}
		}
		return Receipt{}, err
	}

	m.log.Debug("email sent",
		zap.String("transport", m.transport.Name()),
		zap.String("to", e.To),
		zap.String("email_id", rcpt.MessageID))
	return rcpt, nil
}

// AddressOf returns the bare address from a From-style header value such as
// `"Organizer" <hello@example.com>`. Values that do not parse are returned
// trimmed.
func AddressOf(header string) string {
	if a, err := mail.ParseAddress(header); err == nil {
		return a.Address
	}
	if i := strings.Index(header, "<"); i >= 0 {
		if j := strings.Index(header[i:], ">"); j > 0 {
			return strings.TrimSpace(header[i+1 : i+j])
		}
	}
	return strings.TrimSpace(header)
}

// FromHeader formats a From header that shows displayName but routes replies
// to the address of the configured header.
func FromHeader(displayName, configured string) string {
	name := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(displayName)
	return fmt.Sprintf(`"%s" <%s>`, name, AddressOf(configured))
}
