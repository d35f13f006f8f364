package notify

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/ingestion"
)

// PreviewChars is the length of the body preview, in runes.
const PreviewChars = 500

// DigestSummaryChars is the length of each summary in a digest, in runes.
const DigestSummaryChars = 100

const signature = "---\nSent automatically by mailsift"

// Notification is a message ready for delivery. Channels decide the recipients.
type Notification struct {
	RecordID core.ID
	Subject  string
	Body     string
}

// Compose renders the notification for a processed record. raw may be nil,
// in which case the body preview is omitted.
func Compose(record *core.EmailRecord, raw *core.RawMessage) *Notification {
	var b strings.Builder
	b.WriteString("You received an important email.\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", record.Subject)
	fmt.Fprintf(&b, "From: %s\n", record.Sender)
	if len(record.Recipients) > 0 {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(record.Recipients, ", "))
	}
	fmt.Fprintf(&b, "Date: %s\n", record.ReceivedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Importance: %s\n", record.Importance)
	fmt.Fprintf(&b, "Category: %s\n\n", record.Category)

	if record.Summary != "" {
		fmt.Fprintf(&b, "Summary:\n%s\n\n", record.Summary)
	}

	if e := record.Entities; !e.IsEmpty() {
		b.WriteString("Key information:\n")
		writeList(&b, "Key points", e.KeyPoints)
		writeList(&b, "Action items", e.ActionItems)
		writeList(&b, "Important dates", e.ImportantDates)
		writeList(&b, "Contacts", e.Contacts)
		b.WriteString("\n")
	}

	if raw != nil {
		body := raw.Body
		if strings.TrimSpace(body) == "" {
			body = ingestion.HTMLToText(raw.HTMLBody)
		}
		b.WriteString("Preview:\n")
		b.WriteString(preview(strings.TrimSpace(body), PreviewChars))
		b.WriteString("\n\n")
	}

	b.WriteString(signature)

	return &Notification{
		RecordID: record.Id,
		Subject:  "[Important] " + record.Subject,
		Body:     b.String(),
	}
}

// ComposeDigest renders one notification covering several records.
func ComposeDigest(records []*core.EmailRecord) *Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "You received %d important emails.\n\n", len(records))
	for i, record := range records {
		fmt.Fprintf(&b, "%d. Subject: %s\n", i+1, record.Subject)
		fmt.Fprintf(&b, "   From: %s\n", record.Sender)
		fmt.Fprintf(&b, "   Date: %s\n", record.ReceivedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "   Importance: %s\n", record.Importance)
		fmt.Fprintf(&b, "   Category: %s\n", record.Category)
		if record.Summary != "" {
			fmt.Fprintf(&b, "   Summary: %s\n", preview(record.Summary, DigestSummaryChars))
		}
		b.WriteString("\n")
	}
	b.WriteString(signature)

	return &Notification{
		Subject: fmt.Sprintf("[Important] %d important emails", len(records)),
		Body:    b.String(),
	}
}

// ComposeAlert renders an operator alert. details are listed in key order.
func ComposeAlert(subject, message string, details map[string]string, now time.Time) *Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "System alert:\n\n%s\n\n", message)
	fmt.Fprintf(&b, "Time: %s\n\n", now.Format("2006-01-02 15:04:05"))
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("Details:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, details[k])
		}
		b.WriteString("\n")
	}
	b.WriteString(signature)

	return &Notification{
		Subject: "[mailsift alert] " + subject,
		Body:    b.String(),
	}
}

// ComposeTest renders the notification sent by SendTest.
func ComposeTest(now time.Time) *Notification {
	return &Notification{
		Subject: "mailsift test notification",
		Body: fmt.Sprintf("This is a test notification.\n\nTime: %s\n\n%s",
			now.Format("2006-01-02 15:04:05"), signature),
	}
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) > 0 {
		fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, "; "))
	}
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
