package imap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Quarterly report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The report is attached.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>The report is attached.</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"\r\n" +
	"0123456789\r\n" +
	"--outer--\r\n"

func TestParseMessage_Multipart(t *testing.T) {
	p := ParseMessage([]byte(multipartMessage))

	assert.Equal(t, "Quarterly report", p.Subject)
	assert.Equal(t, "The report is attached.", strings.TrimSpace(p.Text))
	assert.Equal(t, "<p>The report is attached.</p>", strings.TrimSpace(p.HTML))

	require.Len(t, p.Attachments, 1)
	att := p.Attachments[0]
	assert.Equal(t, "report.pdf", att.Name)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, int64(10), att.Size)
	assert.Equal(t, "part/3", att.Ref)
}

func TestParseMessage_SinglePart(t *testing.T) {
	raw := "Subject: Hi\r\nContent-Type: text/plain\r\n\r\nJust text.\r\n"
	p := ParseMessage([]byte(raw))
	assert.Equal(t, "Hi", p.Subject)
	assert.Equal(t, "Just text.", strings.TrimSpace(p.Text))
	assert.Empty(t, p.Attachments)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Host: "imap.example.com", Port: "993", Username: "me@example.com", TLS: true}
	assert.NoError(t, cfg.Validate())

	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxPerFetch, c.cfg.MaxPerFetch)

	bad := cfg
	bad.Host = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Username = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxPerFetch = -1
	assert.Error(t, bad.Validate())
}
