package notify

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/poiesic/mailsift/core"
	"github.com/stretchr/testify/assert"
)

func testRecord() *core.EmailRecord {
	return &core.EmailRecord{
		Id:         core.RecordID("INBOX", 7),
		Subject:    "Server outage",
		Sender:     "ops@example.com",
		Recipients: []string{"me@example.com", "team@example.com"},
		ReceivedAt: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC),
		Summary:    "Production is down since 08:00.",
		Category:   core.CategoryWork,
		Importance: core.ImportanceHigh,
		Entities: &core.Entities{
			ActionItems:    []string{"join the incident call"},
			ImportantDates: []string{"2025-03-01"},
		},
	}
}

func TestCompose(t *testing.T) {
	raw := &core.RawMessage{Body: "  Production is down.  "}
	n := Compose(testRecord(), raw)

	assert.Equal(t, core.RecordID("INBOX", 7), n.RecordID)
	assert.Equal(t, "[Important] Server outage", n.Subject)
	assert.Contains(t, n.Body, "Subject: Server outage\n")
	assert.Contains(t, n.Body, "From: ops@example.com\n")
	assert.Contains(t, n.Body, "To: me@example.com, team@example.com\n")
	assert.Contains(t, n.Body, "Date: 2025-03-01 08:30:00\n")
	assert.Contains(t, n.Body, "Importance: high\n")
	assert.Contains(t, n.Body, "Summary:\nProduction is down since 08:00.\n")
	assert.Contains(t, n.Body, "Action items: join the incident call\n")
	assert.Contains(t, n.Body, "Important dates: 2025-03-01\n")
	assert.NotContains(t, n.Body, "Key points")
	assert.Contains(t, n.Body, "Preview:\nProduction is down.\n")
	assert.True(t, strings.HasSuffix(n.Body, "Sent automatically by mailsift"))
}

func TestCompose_PreviewIsTruncated(t *testing.T) {
	raw := &core.RawMessage{Body: strings.Repeat("é", PreviewChars+50)}
	n := Compose(testRecord(), raw)

	start := strings.Index(n.Body, "Preview:\n") + len("Preview:\n")
	end := strings.Index(n.Body[start:], "\n")
	preview := n.Body[start : start+end]
	assert.Equal(t, PreviewChars+3, utf8.RuneCountInString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestCompose_HTMLFallbackAndMissingRaw(t *testing.T) {
	raw := &core.RawMessage{HTMLBody: "<p>Rendered <b>only</b> as HTML</p>"}
	n := Compose(testRecord(), raw)
	assert.Contains(t, n.Body, "Preview:\nRendered only as HTML")

	n = Compose(testRecord(), nil)
	assert.NotContains(t, n.Body, "Preview:")
}

func TestComposeTest(t *testing.T) {
	n := ComposeTest(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, "mailsift test notification", n.Subject)
	assert.Contains(t, n.Body, "Time: 2025-03-01 09:00:00")
	assert.Zero(t, n.RecordID)
}

func TestComposeDigest(t *testing.T) {
	second := testRecord()
	second.Subject = "Offer letter"
	second.Summary = strings.Repeat("x", DigestSummaryChars+20)
	n := ComposeDigest([]*core.EmailRecord{testRecord(), second})

	assert.Equal(t, "[Important] 2 important emails", n.Subject)
	assert.Zero(t, n.RecordID)
	assert.Contains(t, n.Body, "You received 2 important emails.\n")
	assert.Contains(t, n.Body, "1. Subject: Server outage\n")
	assert.Contains(t, n.Body, "2. Subject: Offer letter\n")
	assert.Contains(t, n.Body, "   Summary: Production is down since 08:00.\n")
	assert.Contains(t, n.Body, "   Summary: "+strings.Repeat("x", DigestSummaryChars)+"...\n")
	assert.True(t, strings.HasSuffix(n.Body, "Sent automatically by mailsift"))
}

func TestComposeAlert(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := ComposeAlert("Message quarantined", "Message 7 was quarantined.",
		map[string]string{"uid": "7", "folder": "INBOX", "reason": "embed: dimension mismatch"}, now)

	assert.Equal(t, "[mailsift alert] Message quarantined", n.Subject)
	assert.Contains(t, n.Body, "System alert:\n\nMessage 7 was quarantined.\n")
	assert.Contains(t, n.Body, "Time: 2025-03-01 09:00:00\n")
	assert.Contains(t, n.Body, "Details:\n  folder: INBOX\n  reason: embed: dimension mismatch\n  uid: 7\n")

	n = ComposeAlert("Ping", "No details.", nil, now)
	assert.NotContains(t, n.Body, "Details:")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"negative delay", func(c *Config) { c.BaseDelay = -time.Second }},
		{"sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"delivery timeout", func(c *Config) { c.DeliveryTimeout = 0 }},
		{"workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
