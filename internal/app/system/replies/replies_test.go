package replies_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dalemusser/organizer/internal/app/system/mailer"
	"github.com/dalemusser/organizer/internal/app/system/notify"
	"github.com/dalemusser/organizer/internal/app/system/replies"
	"github.com/dalemusser/organizer/internal/domain/models"
	"github.com/dalemusser/organizer/internal/testutil"
	"go.uber.org/zap"
)

var errInsert = errors.New("insert failed")

func TestParseIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		headers   string
		wantID    string
		wantReply string
	}{
		{
			name:      "both",
			headers:   "From: b@example.org\nMessage-Id: <xyz789@mail.example.org>\nIn-Reply-To: <abc123@example.org>\n",
			wantID:    "xyz789",
			wantReply: "abc123",
		},
		{
			name:      "case insensitive",
			headers:   "message-id: <m1@x>\nin-reply-to: <t1@y>",
			wantID:    "m1",
			wantReply: "t1",
		},
		{
			name:      "folded value",
			headers:   "Message-ID:\n <m2@x>\nIn-Reply-To:\n\t<t2.filter.0@y>",
			wantID:    "m2",
			wantReply: "t2.filter.0",
		},
		{
			name:      "missing message id",
			headers:   "In-Reply-To: <abc123@example.org>",
			wantReply: "abc123",
		},
		{
			name:    "ignores prefixed headers",
			headers: "X-Original-Message-Id: <nope@x>",
		},
		{
			name:    "no angle brackets",
			headers: "Message-Id: m3@x\nIn-Reply-To: t3@y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, reply := replies.ParseIdentifiers(tt.headers)
			if id != tt.wantID {
				t.Errorf("message id: got %q, want %q", id, tt.wantID)
			}
			if reply != tt.wantReply {
				t.Errorf("in-reply-to: got %q, want %q", reply, tt.wantReply)
			}
		})
	}
}

func TestStripQuoted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing quote and signature", "reply text\n> quoted line\n---\nsignature", "reply text"},
		{"trailing quote only", "thanks!\n\n> original\n> more", "thanks!"},
		{"inline answers", "> question one\nanswer one\n> question two\nanswer two", "> question one\nanswer one\n> question two\nanswer two"},
		{"quoted delimiter", "ok\n> > ---\n> old", "ok"},
		{"crlf", "hi\r\n> q\r\n", "hi"},
		{"only quotes", "> a\n> b", ""},
		{"dashes in text", "a --- b\nc", "a --- b\nc"},
		{"blank line between quote and answer", "> q\n\nanswer", "> q\n\nanswer"},
		{"blank line then delimiter keeps quote", "Thanks\n> quoted\n\n---\nsig", "Thanks\n> quoted"},
		{"trailing blanks after quote", "hi\n> q\n\n\n", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replies.StripQuoted(tt.in); got != tt.want {
				t.Errorf("StripQuoted(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type env struct {
	mem *testutil.Mem
	rec *testutil.MailRecorder
	n   *notify.Notifier
	eng *replies.Engine
}

// newEnv seeds "commons" (1) with A (1) and B (2), both default preference.
func newEnv(ids ...string) *env {
	mem := testutil.NewMem(99)
	mem.AddContext(models.Context{ID: 1, Name: "Commons", Slug: "commons"})
	mem.AddPerson(models.Person{ID: 1, Email: "a@example.org", Name: "Alice", Slug: "alice1"})
	mem.AddPerson(models.Person{ID: 2, Email: "b@example.org", Name: "Bob", Slug: "bob222"})
	mem.AddMember(1, 1, 1)
	mem.AddMember(2, 2, 1)

	rec := &testutil.MailRecorder{IDs: ids}
	n := notify.New(notify.Deps{
		Messages:   mem.Messages(),
		Persons:    mem.Persons(),
		Recipients: mem.Members(),
		Prefs:      mem.Facets(),
		Tickets:    mem.Tickets(),
		Members:    mem.Members(),
		Mail:       mailer.New(rec, "reply@example.org", zap.NewNop()),
	}, notify.Config{BaseURL: "https://example.org", ReplyFrom: "reply@example.org"}, zap.NewNop())

	eng := replies.New(replies.Deps{
		Inbound:  mem.Inbound(),
		Tickets:  mem.Tickets(),
		Messages: mem.Messages(),
		Poster:   n,
	}, zap.NewNop())
	return &env{mem: mem, rec: rec, n: n, eng: eng}
}

func headers(messageID, inReplyTo string) string {
	return "From: someone@example.org\nMessage-Id: <" + messageID + "@mail.example.org>\nIn-Reply-To: <" + inReplyTo + "@example.org>\n"
}

func TestIngest_EndToEnd(t *testing.T) {
	e := newEnv("abc123", "def456")
	ctx := context.Background()

	first, err := e.n.SendMessage(ctx, 1, 1, nil, "Hello world")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	e.n.Wait()
	if first.ID != 100 {
		t.Fatalf("first message id: got %d, want 100", first.ID)
	}

	toB := e.rec.SentTo("b@example.org")
	if len(toB) != 1 {
		t.Fatalf("emails to B: got %d, want 1", len(toB))
	}
	if toB[0].Subject != "Hello world" {
		t.Errorf("Subject: got %q, want %q", toB[0].Subject, "Hello world")
	}
	if !strings.Contains(toB[0].TextBody, "/group/commons/100") {
		t.Errorf("body missing permalink:\n%s", toB[0].TextBody)
	}

	res := e.eng.Ingest(ctx, replies.Payload{
		Headers: headers("inbound1", "abc123"),
		Text:    "Sounds good\n\n> Hello world",
	})
	e.n.Wait()

	if !res.OK || res.MessageID != 101 || res.Status != models.InboundCreated {
		t.Fatalf("Ingest: got %+v, want ok created 101", res)
	}
	reply, ok := e.mem.Message(101)
	if !ok {
		t.Fatal("reply message not stored")
	}
	if reply.PersonID != 2 || reply.ContextID != 1 || reply.InReplyTo == nil || *reply.InReplyTo != 100 {
		t.Errorf("reply: got %+v", reply)
	}
	if reply.Content != "Sounds good" {
		t.Errorf("reply content: got %q", reply.Content)
	}

	toA := e.rec.SentTo("a@example.org")
	if len(toA) != 1 {
		t.Fatalf("emails to A: got %d, want 1", len(toA))
	}
	if toA[0].Subject != "Re: Hello world" {
		t.Errorf("reply Subject: got %q", toA[0].Subject)
	}
	if !strings.Contains(toA[0].TextBody, "/group/commons/100#101") {
		t.Errorf("reply body missing anchor permalink:\n%s", toA[0].TextBody)
	}

	recs := e.mem.InboundList()
	if len(recs) != 1 || recs[0].ID != "inbound1" || recs[0].MessageID != 101 || recs[0].PersonID != 2 {
		t.Errorf("inbound records: got %+v", recs)
	}
}

func TestIngest_FlattensReplyToReply(t *testing.T) {
	e := newEnv()
	root := int64(100)
	e.mem.AddMessage(models.Message{ID: 100, PersonID: 1, ContextID: 1, Content: "root"})
	e.mem.AddMessage(models.Message{ID: 101, PersonID: 1, ContextID: 1, InReplyTo: &root, Content: "child"})
	if err := e.mem.Tickets().Insert(context.Background(), models.Ticket{ID: "t1", ContextID: 1, MessageID: 101, PersonID: 2}); err != nil {
		t.Fatal(err)
	}

	res := e.eng.Ingest(context.Background(), replies.Payload{Headers: headers("in1", "t1"), Text: "deeper"})
	e.n.Wait()
	if !res.OK {
		t.Fatalf("Ingest: got %+v", res)
	}
	msg, _ := e.mem.Message(res.MessageID)
	if msg.InReplyTo == nil || *msg.InReplyTo != 100 {
		t.Errorf("in_reply_to: got %v, want 100", msg.InReplyTo)
	}
}

func TestIngest_TicketPrefixFallback(t *testing.T) {
	e := newEnv()
	e.mem.AddMessage(models.Message{ID: 100, PersonID: 1, ContextID: 1, Content: "root"})
	if err := e.mem.Tickets().Insert(context.Background(), models.Ticket{ID: "sg42", ContextID: 1, MessageID: 100, PersonID: 2}); err != nil {
		t.Fatal(err)
	}

	res := e.eng.Ingest(context.Background(), replies.Payload{Headers: headers("in1", "sg42.filter001.0"), Text: "hi"})
	e.n.Wait()
	if !res.OK || res.Status != models.InboundCreated {
		t.Errorf("Ingest: got %+v, want created", res)
	}
}

func TestIngest_MissingMessageID(t *testing.T) {
	e := newEnv()
	res := e.eng.Ingest(context.Background(), replies.Payload{
		Headers: "In-Reply-To: <abc123@example.org>",
		Text:    "hello",
	})

	if res.OK || res.Status != models.InboundUnparsable {
		t.Errorf("Ingest: got %+v, want not ok unparsable", res)
	}
	if n := e.mem.MessageCount(); n != 0 {
		t.Errorf("messages: got %d, want 0", n)
	}
	recs := e.mem.InboundList()
	if len(recs) != 1 {
		t.Fatalf("inbound records: got %d, want 1", len(recs))
	}
	if recs[0].MessageID != models.NoID || recs[0].PersonID != models.NoID {
		t.Errorf("record ids: got %d/%d, want sentinels", recs[0].MessageID, recs[0].PersonID)
	}
	if !strings.Contains(recs[0].Payload, "abc123") {
		t.Errorf("record payload missing raw headers: %q", recs[0].Payload)
	}
}

func TestIngest_UnknownTicket(t *testing.T) {
	e := newEnv()
	res := e.eng.Ingest(context.Background(), replies.Payload{Headers: headers("in1", "nobody"), Text: "hello"})

	if !res.OK || res.Status != models.InboundUncorrelated {
		t.Errorf("Ingest: got %+v, want ok uncorrelated", res)
	}
	if n := e.mem.MessageCount(); n != 0 {
		t.Errorf("messages: got %d, want 0", n)
	}
	recs := e.mem.InboundList()
	if len(recs) != 1 || recs[0].MessageID != models.NoID {
		t.Errorf("inbound records: got %+v", recs)
	}
}

func TestIngest_RetryIsIdempotent(t *testing.T) {
	e := newEnv()
	e.mem.AddMessage(models.Message{ID: 100, PersonID: 1, ContextID: 1, Content: "root"})
	if err := e.mem.Tickets().Insert(context.Background(), models.Ticket{ID: "t1", ContextID: 1, MessageID: 100, PersonID: 2}); err != nil {
		t.Fatal(err)
	}
	p := replies.Payload{Headers: headers("in1", "t1"), Text: "once"}

	first := e.eng.Ingest(context.Background(), p)
	second := e.eng.Ingest(context.Background(), p)
	e.n.Wait()

	if !first.OK || !second.OK || first.MessageID != second.MessageID {
		t.Errorf("results: first %+v, second %+v", first, second)
	}
	if n := e.mem.MessageCount(); n != 2 {
		t.Errorf("messages: got %d, want 2", n)
	}
}

func TestIngest_HTMLOnlyBody(t *testing.T) {
	e := newEnv()
	e.mem.AddMessage(models.Message{ID: 100, PersonID: 1, ContextID: 1, Content: "root"})
	if err := e.mem.Tickets().Insert(context.Background(), models.Ticket{ID: "t1", ContextID: 1, MessageID: 100, PersonID: 2}); err != nil {
		t.Fatal(err)
	}

	res := e.eng.Ingest(context.Background(), replies.Payload{
		Headers: headers("in1", "t1"),
		HTML:    "<div>From <b>HTML</b></div><blockquote><div>&gt; old</div></blockquote>",
	})
	e.n.Wait()
	if !res.OK {
		t.Fatalf("Ingest: got %+v", res)
	}
	msg, _ := e.mem.Message(res.MessageID)
	if msg.Content != "From HTML" {
		t.Errorf("content: got %q, want %q", msg.Content, "From HTML")
	}
}

func TestIngest_CreateFailureStillRecorded(t *testing.T) {
	e := newEnv()
	e.mem.AddMessage(models.Message{ID: 100, PersonID: 1, ContextID: 1, Content: "root"})
	if err := e.mem.Tickets().Insert(context.Background(), models.Ticket{ID: "t1", ContextID: 1, MessageID: 100, PersonID: 2}); err != nil {
		t.Fatal(err)
	}
	e.mem.FailInsert = errInsert

	res := e.eng.Ingest(context.Background(), replies.Payload{Headers: headers("in1", "t1"), Text: "hi"})
	if res.OK || res.Status != models.InboundFailed {
		t.Errorf("Ingest: got %+v, want failed", res)
	}
	recs := e.mem.InboundList()
	if len(recs) != 1 || recs[0].Status != models.InboundFailed || recs[0].PersonID != 2 {
		t.Errorf("inbound records: got %+v", recs)
	}

	// A retry after the store recovers is processed again.
	e.mem.FailInsert = nil
	res = e.eng.Ingest(context.Background(), replies.Payload{Headers: headers("in1", "t1"), Text: "hi"})
	e.n.Wait()
	if !res.OK || res.Status != models.InboundCreated {
		t.Errorf("retry: got %+v, want created", res)
	}
}
