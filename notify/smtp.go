package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/poiesic/mailsift/core"
)

// SMTPConfig holds the SMTP server settings for sending notifications.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string

	// From defaults to Username.
	From string
	To   []string

	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS bool
}

// Validate checks the configuration.
func (c *SMTPConfig) Validate() error {
	if c.Host == "" || c.Port == "" {
		return errors.New("smtp: host and port are required")
	}
	if c.from() == "" {
		return errors.New("smtp: sender address is required")
	}
	if len(c.To) == 0 {
		return errors.New("smtp: at least one recipient is required")
	}
	return nil
}

func (c *SMTPConfig) from() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// SMTPChannel delivers notifications as plain-text email.
type SMTPChannel struct {
	cfg SMTPConfig
}

var _ Channel = (*SMTPChannel)(nil)

// NewSMTPChannel creates an SMTP channel.
func NewSMTPChannel(cfg SMTPConfig) (*SMTPChannel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPChannel{cfg: cfg}, nil
}

func (c *SMTPChannel) Name() string { return "smtp" }

// Deliver sends n to every configured recipient. Network and server
// failures wrap core.ErrTransientTransport.
func (c *SMTPChannel) Deliver(ctx context.Context, n *Notification) error {
	msg, err := ComposeMessage(c.cfg.from(), c.cfg.To, n, time.Now())
	if err != nil {
		return err
	}
	if err := c.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransientTransport, err)
	}
	return nil
}

// ComposeMessage renders n as an RFC 5322 text/plain message.
func ComposeMessage(from string, to []string, n *Notification, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	rcpts := make([]*mail.Address, len(to))
	for i, addr := range to {
		rcpts[i] = &mail.Address{Address: addr}
	}
	h.SetAddressList("To", rcpts)
	h.SetSubject(n.Subject)
	h.SetMessageID(uuid.NewString() + "@mailsift")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("composing message: %w", err)
	}
	if _, err := io.WriteString(w, n.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *SMTPChannel) send(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, c.cfg.Port)
	tlsConfig := &tls.Config{ServerName: c.cfg.Host}

	var conn net.Conn
	var err error
	if c.cfg.TLS {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if !c.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("SMTP STARTTLS: %w", err)
			}
		}
	}

	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(c.cfg.from()); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range c.cfg.To {
		if err := client.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}
	return client.Quit()
}
