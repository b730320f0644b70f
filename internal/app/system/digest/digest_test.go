package digest_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/organizer/internal/app/system/digest"
	"github.com/dalemusser/organizer/internal/app/system/mailer"
	"github.com/dalemusser/organizer/internal/domain/models"
	"github.com/dalemusser/organizer/internal/testutil"
	"go.uber.org/zap"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	mem *testutil.Mem
	rec *testutil.MailRecorder
}

// newEnv seeds persons A (author, 1) and B (digest reader, 2) and two
// contexts, with B in digest mode for both.
func newEnv() *env {
	mem := testutil.NewMem(0)
	mem.AddPerson(models.Person{ID: 1, Email: "a@example.org", Name: "Alice", Slug: "alice1"})
	mem.AddPerson(models.Person{ID: 2, Email: "b@example.org", Name: "Bob", Slug: "bob222"})
	mem.AddContext(models.Context{ID: 1, Name: "Commons", Slug: "commons"})
	mem.AddContext(models.Context{ID: 2, Name: "Garden", Slug: "garden"})
	mem.AddMember(1, 1, 1)
	mem.AddMember(2, 2, 1)
	mem.AddMember(3, 1, 2)
	mem.AddMember(4, 2, 2)
	mem.SetPreference(2, models.EmailDigest)
	mem.SetPreference(4, models.EmailDigest)
	return &env{mem: mem, rec: &testutil.MailRecorder{}}
}

func (e *env) post(id, author, contextID int64, content string, age time.Duration) {
	e.mem.AddMessage(models.Message{
		ID:        id,
		PersonID:  author,
		ContextID: contextID,
		Content:   content,
		CreatedAt: now.Add(-age),
		UpdatedAt: now.Add(-age),
	})
}

func (e *env) runner(policy digest.AdvancePolicy) *digest.Runner {
	r := digest.New(digest.Deps{
		Eligible:   e.mem.Members(),
		Persons:    e.mem.Persons(),
		Contexts:   e.mem.Contexts(),
		Messages:   e.mem.Messages(),
		Watermarks: e.mem.Facets(),
		Mail:       mailer.New(e.rec, "digest@example.org", zap.NewNop()),
	}, digest.Config{BaseURL: "https://example.org", Advance: policy}, zap.NewNop())
	r.Now = func() time.Time { return now }
	return r
}

func TestRun_WatermarkMonotonic(t *testing.T) {
	e := newEnv()
	e.post(5, 1, 1, "five", 3*time.Hour)
	e.post(7, 1, 1, "seven", 2*time.Hour)
	e.post(9, 1, 1, "nine", time.Hour)
	e.mem.SetWatermark(2, 1, 5)
	r := e.runner(digest.AdvanceBeforeSend)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Sent != 1 || res.Messages != 2 {
		t.Fatalf("result: got %+v, want 1 sent with 2 messages", res)
	}
	if wm, _ := e.mem.WatermarkOf(2, 1); wm != 9 {
		t.Errorf("watermark: got %d, want 9", wm)
	}

	sent := e.rec.SentTo("b@example.org")
	if len(sent) != 1 {
		t.Fatalf("emails to B: got %d, want 1", len(sent))
	}
	body := sent[0].TextBody
	if strings.Contains(body, "five") {
		t.Errorf("body includes message at watermark:\n%s", body)
	}
	if !strings.Contains(body, "seven") || !strings.Contains(body, "nine") {
		t.Errorf("body missing unseen messages:\n%s", body)
	}
	if strings.Index(body, "seven") > strings.Index(body, "nine") {
		t.Errorf("messages not in creation order:\n%s", body)
	}
	if sent[0].Subject != "Digest: 2 messages" {
		t.Errorf("Subject: got %q", sent[0].Subject)
	}

	res, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Sent != 0 {
		t.Errorf("second run sent %d, want 0", res.Sent)
	}
	if wm, _ := e.mem.WatermarkOf(2, 1); wm != 9 {
		t.Errorf("watermark after second run: got %d, want 9", wm)
	}
	if n := len(e.rec.Sent()); n != 1 {
		t.Errorf("total emails: got %d, want 1", n)
	}
}

func TestRun_AggregatesContexts(t *testing.T) {
	e := newEnv()
	e.post(1, 1, 1, "commons one", 3*time.Hour)
	e.post(2, 1, 1, "commons two", 2*time.Hour)
	e.post(3, 1, 2, "garden one", time.Hour)

	res, err := e.runner(digest.AdvanceBeforeSend).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Persons != 1 || res.Sent != 1 || res.Messages != 3 {
		t.Errorf("result: got %+v", res)
	}

	sent := e.rec.SentTo("b@example.org")
	if len(sent) != 1 {
		t.Fatalf("emails to B: got %d, want 1", len(sent))
	}
	if sent[0].Subject != "Digest: 3 messages" {
		t.Errorf("Subject: got %q, want %q", sent[0].Subject, "Digest: 3 messages")
	}
	for _, want := range []string{"Commons", "Garden", "https://example.org/group/garden/3", "https://example.org/settings"} {
		if !strings.Contains(sent[0].TextBody, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if wm, _ := e.mem.WatermarkOf(2, 1); wm != 2 {
		t.Errorf("commons watermark: got %d, want 2", wm)
	}
	if wm, _ := e.mem.WatermarkOf(2, 2); wm != 3 {
		t.Errorf("garden watermark: got %d, want 3", wm)
	}
}

func TestRun_SkipsOwnAndOldMessages(t *testing.T) {
	e := newEnv()
	e.post(1, 2, 1, "mine", time.Hour)
	e.post(2, 1, 1, "old", 48*time.Hour)

	res, err := e.runner(digest.AdvanceBeforeSend).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Sent != 0 || len(e.rec.Sent()) != 0 {
		t.Errorf("expected nothing sent, got %+v", res)
	}
	if _, ok := e.mem.WatermarkOf(2, 1); ok {
		t.Error("watermark set for a context with nothing new")
	}
}

func TestRun_ReplyHeader(t *testing.T) {
	e := newEnv()
	e.post(1, 2, 1, "Is the  garden\nopen on Sunday?", 3*time.Hour)
	parent := int64(1)
	e.mem.AddMessage(models.Message{ID: 2, PersonID: 1, ContextID: 1, InReplyTo: &parent,
		Content: "Yes, from nine.", CreatedAt: now.Add(-time.Hour)})

	if _, err := e.runner(digest.AdvanceBeforeSend).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sent := e.rec.SentTo("b@example.org")
	if len(sent) != 1 {
		t.Fatalf("emails to B: got %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].TextBody, "Re: Is the garden open on Sunday?") {
		t.Errorf("body missing reply header:\n%s", sent[0].TextBody)
	}
	if !strings.Contains(sent[0].TextBody, "https://example.org/group/commons/1#2") {
		t.Errorf("body missing reply permalink:\n%s", sent[0].TextBody)
	}
}

func TestRun_SendFailure(t *testing.T) {
	tests := []struct {
		policy digest.AdvancePolicy
		wantWM bool
	}{
		{digest.AdvanceBeforeSend, true},
		{digest.AdvanceAfterSend, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			e := newEnv()
			e.rec.FailFor = map[string]bool{"b@example.org": true}
			e.post(1, 1, 1, "hello", time.Hour)

			res, err := e.runner(tt.policy).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Failed != 1 || res.Sent != 0 {
				t.Errorf("result: got %+v, want 1 failed", res)
			}
			_, ok := e.mem.WatermarkOf(2, 1)
			if ok != tt.wantWM {
				t.Errorf("watermark set: got %v, want %v", ok, tt.wantWM)
			}
		})
	}
}

func TestRun_AfterSendAdvancesOnSuccess(t *testing.T) {
	e := newEnv()
	e.post(4, 1, 1, "hello", time.Hour)

	res, err := e.runner(digest.AdvanceAfterSend).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Sent != 1 {
		t.Errorf("Sent: got %d, want 1", res.Sent)
	}
	if wm, _ := e.mem.WatermarkOf(2, 1); wm != 4 {
		t.Errorf("watermark: got %d, want 4", wm)
	}
}

func TestRun_PersistenceErrorIsPerPerson(t *testing.T) {
	e := newEnv()
	e.mem.AddPerson(models.Person{ID: 3, Email: "c@example.org", Slug: "carol3"})
	e.mem.AddMember(5, 3, 1)
	e.mem.SetPreference(5, models.EmailDigest)
	e.post(1, 1, 1, "hello", time.Hour)
	e.mem.FailAdvance = errors.New("write failed")

	res, err := e.runner(digest.AdvanceBeforeSend).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Persons != 2 || res.Failed != 2 || res.Sent != 0 {
		t.Errorf("result: got %+v, want 2 persons both failed", res)
	}
}

type unreadableWatermarks struct{ digest.WatermarkStore }

func (unreadableWatermarks) Watermark(context.Context, int64, int64) (models.DigestWatermark, bool, error) {
	return models.DigestWatermark{}, false, errors.New("bad watermark value")
}

func TestRun_WatermarkReadErrorIsFailure(t *testing.T) {
	e := newEnv()
	e.post(1, 1, 1, "hello", time.Hour)
	r := digest.New(digest.Deps{
		Eligible:   e.mem.Members(),
		Persons:    e.mem.Persons(),
		Contexts:   e.mem.Contexts(),
		Messages:   e.mem.Messages(),
		Watermarks: unreadableWatermarks{e.mem.Facets()},
		Mail:       mailer.New(e.rec, "digest@example.org", zap.NewNop()),
	}, digest.Config{BaseURL: "https://example.org"}, zap.NewNop())
	r.Now = func() time.Time { return now }

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("result: got %+v, want 1 failed", res)
	}
	if len(e.rec.Sent()) != 0 {
		t.Error("digest sent despite unreadable watermark")
	}
}

type failingLister struct{}

func (failingLister) ListDigestEligible(context.Context) ([]models.DigestMembership, error) {
	return nil, errors.New("query failed")
}

func TestRun_EligibilityErrorReturned(t *testing.T) {
	e := newEnv()
	r := digest.New(digest.Deps{Eligible: failingLister{}}, digest.Config{}, zap.NewNop())
	if _, err := r.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
	if len(e.rec.Sent()) != 0 {
		t.Error("unexpected email")
	}
}

func TestParseAdvancePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    digest.AdvancePolicy
		wantErr bool
	}{
		{"", digest.AdvanceBeforeSend, false},
		{"before_send", digest.AdvanceBeforeSend, false},
		{"after_send", digest.AdvanceAfterSend, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := digest.ParseAdvancePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAdvancePolicy(%q) error: got %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAdvancePolicy(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
