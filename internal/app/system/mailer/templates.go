// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// digestRule separates a context banner from its entries.
var digestRule = strings.Repeat("=", 50)

// NotificationEmailData holds data for an immediate notification email.
type NotificationEmailData struct {
	Subject        string
	Content        string
	MessageLink    string
	SettingsLink   string
	ContextName    string
	UnsubscribeURL string
}

// BuildNotificationEmail creates an immediate notification email for one
// recipient.
func BuildNotificationEmail(data NotificationEmailData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  data.Subject,
		TextBody: buildNotificationText(data),
	}
}

func buildNotificationText(data NotificationEmailData) string {
	var buf bytes.Buffer
	buf.WriteString(data.Content + "\n\n")
	buf.WriteString("---\n")
	buf.WriteString("Message link:\n")
	buf.WriteString(data.MessageLink + "\n\n")
	buf.WriteString("Too many emails? Update your notification settings:\n")
	buf.WriteString(data.SettingsLink + "\n\n")
	buf.WriteString(fmt.Sprintf("Unsubscribe from %s:\n", data.ContextName))
	buf.WriteString(data.UnsubscribeURL)
	return buf.String()
}

// DigestEntryData is one message in a digest section.
type DigestEntryData struct {
	ReplySnippet string // empty for top-level messages
	AuthorName   string
	Created      time.Time
	Content      string
	MessageLink  string
}

// DigestSectionData groups the entries of one context.
type DigestSectionData struct {
	ContextName string
	Entries     []DigestEntryData
}

// DigestEmailData holds every section of one person's digest.
type DigestEmailData struct {
	Sections     []DigestSectionData
	SettingsLink string
}

// MessageCount returns the number of entries across all sections.
func (d DigestEmailData) MessageCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Entries)
	}
	return n
}

// BuildDigestEmail creates a digest email combining every section.
func BuildDigestEmail(data DigestEmailData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  DigestSubject(data.MessageCount()),
		TextBody: buildDigestText(data),
	}
}

// DigestSubject returns "Digest: N message" or "Digest: N messages".
func DigestSubject(n int) string {
	plural := "s"
	if n == 1 {
		plural = ""
	}
	return fmt.Sprintf("Digest: %d message%s", n, plural)
}

func buildDigestText(data DigestEmailData) string {
	sections := make([]string, 0, len(data.Sections))
	for _, s := range data.Sections {
		sections = append(sections, buildDigestSection(s))
	}

	var buf bytes.Buffer
	buf.WriteString(strings.Join(sections, "\n\n\n"))
	buf.WriteString("\n\n---\n")
	buf.WriteString("Notification settings:\n")
	buf.WriteString(data.SettingsLink)
	return buf.String()
}

func buildDigestSection(s DigestSectionData) string {
	blocks := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		var b bytes.Buffer
		if e.ReplySnippet != "" {
			b.WriteString("Re: " + e.ReplySnippet + "\n")
		}
		b.WriteString(fmt.Sprintf("%s at %s:\n\n", e.AuthorName, e.Created.UTC().Format(time.RFC1123)))
		b.WriteString(e.Content + "\n\n")
		b.WriteString("Message link:\n")
		b.WriteString(e.MessageLink)
		blocks = append(blocks, b.String())
	}
	return s.ContextName + "\n" + digestRule + "\n\n" + strings.Join(blocks, "\n\n---\n\n")
}
