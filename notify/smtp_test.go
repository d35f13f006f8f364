package notify

import (
	"context"
	"io"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/poiesic/mailsift/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPConfigValidate(t *testing.T) {
	valid := SMTPConfig{Host: "smtp.example.com", Port: "587", Username: "me@example.com", To: []string{"me@example.com"}}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "me@example.com", valid.from())

	noHost := valid
	noHost.Host = ""
	assert.Error(t, noHost.Validate())

	noSender := valid
	noSender.Username = ""
	assert.Error(t, noSender.Validate())

	noRecipients := valid
	noRecipients.To = nil
	assert.Error(t, noRecipients.Validate())
}

func TestComposeMessage(t *testing.T) {
	n := &Notification{Subject: "[Important] Server outage", Body: "Production is down."}
	data, err := ComposeMessage("mailsift@example.com", []string{"me@example.com"}, n, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	r, err := mail.CreateReader(strings.NewReader(string(data)))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[Important] Server outage", subject)

	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "me@example.com", to[0].Address)

	id, err := r.Header.MessageID()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@mailsift"))

	part, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "Production is down.", strings.TrimSpace(string(body)))
}

// serveSMTP accepts one connection and plays a minimal SMTP server,
// sending the received DATA on the returned channel.
func serveSMTP(t *testing.T, ln net.Listener) <-chan string {
	t.Helper()
	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.Fields(line + " ")[0])
			switch verb {
			case "EHLO":
				tp.PrintfLine("250-localhost")
				tp.PrintfLine("250 8BITMIME")
			case "MAIL", "RCPT":
				tp.PrintfLine("250 OK")
			case "DATA":
				tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				received <- string(data)
				tp.PrintfLine("250 OK")
			case "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("502 not implemented")
			}
		}
	}()
	return received
}

func TestSMTPChannel_Deliver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	received := serveSMTP(t, ln)

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	channel, err := NewSMTPChannel(SMTPConfig{
		Host: host,
		Port: port,
		From: "mailsift@example.com",
		To:   []string{"me@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp", channel.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = channel.Deliver(ctx, &Notification{Subject: "[Important] Hello", Body: "Body text"})
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Contains(t, data, "Subject: [Important] Hello")
		assert.Contains(t, data, "Body text")
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSMTPChannel_DeliverUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	ln.Close()

	channel, err := NewSMTPChannel(SMTPConfig{Host: host, Port: port, From: "a@example.com", To: []string{"b@example.com"}})
	require.NoError(t, err)

	err = channel.Deliver(context.Background(), &Notification{Subject: "x", Body: "y"})
	assert.ErrorIs(t, err, core.ErrTransientTransport)
}
