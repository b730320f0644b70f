package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalemusser/organizer/internal/app/system/mailer"
)

// MailRecorder is a mailer.Transport that keeps every email in memory.
type MailRecorder struct {
	mu   sync.Mutex
	sent []mailer.Email

	// IDs, when set, supplies the receipt id for each send in order.
	// When exhausted, ids are generated as "mail-N".
	IDs []string
	// FailFor makes sends to these addresses fail.
	FailFor map[string]bool
}

var errRecorderFail = errors.New("recorder: send refused")

func (r *MailRecorder) Name() string { return "recorder" }

func (r *MailRecorder) Send(_ context.Context, e mailer.Email) (mailer.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailFor[e.To] {
		return mailer.Receipt{}, errRecorderFail
	}
	r.sent = append(r.sent, e)

	n := len(r.sent)
	if n <= len(r.IDs) {
		return mailer.Receipt{MessageID: r.IDs[n-1]}, nil
	}
	return mailer.Receipt{MessageID: fmt.Sprintf("mail-%d", n)}, nil
}

// Sent returns a copy of every delivered email.
func (r *MailRecorder) Sent() []mailer.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Email(nil), r.sent...)
}

// SentTo returns the emails delivered to one address.
func (r *MailRecorder) SentTo(addr string) []mailer.Email {
	var out []mailer.Email
	for _, e := range r.Sent() {
		if e.To == addr {
			out = append(out, e)
		}
	}
	return out
}
