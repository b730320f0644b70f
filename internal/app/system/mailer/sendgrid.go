// internal/app/system/mailer/sendgrid.go
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendGridClient is the subset of *sendgrid.Client used here.
type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridTransport delivers email through the SendGrid v3 API. The
// X-Message-Id response header becomes the Receipt's MessageID.
type SendGridTransport struct {
	client sendGridClient
}

// NewSendGrid returns a SendGrid transport for apiKey.
func NewSendGrid(apiKey string) *SendGridTransport {
	return &SendGridTransport{client: sendgrid.NewSendClient(apiKey)}
}

// Name implements Transport.
func (t *SendGridTransport) Name() string { return "sendgrid" }

// Send implements Transport.
func (t *SendGridTransport) Send(ctx context.Context, e Email) (Receipt, error) {
	m := sgmail.NewV3Mail()
	m.SetFrom(toSendGridEmail(e.From))
	m.Subject = e.Subject

	p := sgmail.NewPersonalization()
	p.AddTos(toSendGridEmail(e.To))
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", e.TextBody))
	if e.HTMLBody != "" {
		m.AddContent(sgmail.NewContent("text/html", e.HTMLBody))
	}

	rsp, err := t.client.SendWithContext(ctx, m)
	if err != nil {
		return Receipt{}, &SendError{Transport: t.Name(), Err: err}
	}
	if rsp.StatusCode >= 300 {
		return Receipt{}, &SendError{
			Transport: t.Name(),
			Err:       fmt.Errorf("status %d: %s", rsp.StatusCode, rsp.Body),
		}
	}

	return Receipt{MessageID: http.Header(rsp.Headers).Get("X-Message-Id")}, nil
}

func toSendGridEmail(header string) *sgmail.Email {
	if a, err := mail.ParseAddress(header); err == nil {
		return sgmail.NewEmail(a.Name, a.Address)
	}
	return sgmail.NewEmail("", AddressOf(header))
}
