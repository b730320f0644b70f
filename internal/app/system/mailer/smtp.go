// internal/app/system/mailer/smtp.go
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds connection settings for an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPTransport delivers email through an SMTP relay (Mailpit locally, SES
// or similar in production).
//
// SMTP servers do not report a message id, so the transport generates the
// Message-ID header itself and returns its local part in the Receipt.
type SMTPTransport struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTP returns an SMTP transport.
func NewSMTP(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

// Name implements Transport.
func (t *SMTPTransport) Name() string { return "smtp" }

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, e Email) (Receipt, error) {
	id := uuid.NewString()
	from := AddressOf(e.From)
	raw := buildMessage(e, id, t.now())

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Receipt{}, &SendError{Transport: t.Name(), Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return Receipt{}, &SendError{Transport: t.Name(), Err: err}
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return Receipt{}, &SendError{Transport: t.Name(), Err: err}
		}
	}
	if t.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return Receipt{}, &SendError{Transport: t.Name(), Err: err}
			}
		}
	}

	steps := []func() error{
		func() error { return c.Mail(from) },
		func() error { return c.Rcpt(AddressOf(e.To)) },
		func() error {
			w, err := c.Data()
			if err != nil {
				return err
			}
			if _, err := w.Write(raw); err != nil {
				return err
			}
			return w.Close()
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Receipt{}, &SendError{Transport: t.Name(), Err: err}
		}
	}
	_ = c.Quit()

	return Receipt{MessageID: id}, nil
}

// buildMessage renders a plain-text RFC 5322 message. The Message-ID local
// part is id; its domain is taken from the From address.
func buildMessage(e Email, id string, now time.Time) []byte {
	from := e.From
	if a, err := mail.ParseAddress(e.From); err == nil {
		from = a.String()
	}
	domain := "localhost"
	if addr := AddressOf(e.From); strings.Contains(addr, "@") {
		domain = addr[strings.LastIndex(addr, "@")+1:]
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", e.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", id, domain)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(e.TextBody, "\r\n", "\n"), "\n", "\r\n"))
	return buf.Bytes()
}
