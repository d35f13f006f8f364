// Package imap implements mailbox.Fetcher against an IMAP server.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/mailbox"
)

// DefaultMaxPerFetch caps how many messages one FetchNew returns.
const DefaultMaxPerFetch = 200

// ErrAuthFailed is returned when the server rejects the credentials.
var ErrAuthFailed = errors.New("imap authentication failed")

// Config holds the IMAP connection settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string

	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS bool

	// MaxPerFetch caps the messages returned per FetchNew, oldest first.
	// Zero uses DefaultMaxPerFetch.
	MaxPerFetch int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Host == "" || c.Port == "" {
		return errors.New("imap: host and port are required")
	}
	if c.Username == "" {
		return errors.New("imap: username is required")
	}
	if c.MaxPerFetch < 0 {
		return errors.New("imap: MaxPerFetch must not be negative")
	}
	return nil
}

// Client wraps go-imap v2. Each call opens its own connection, so a
// Client is safe for concurrent use.
type Client struct {
	cfg Config
}

var _ mailbox.Fetcher = (*Client)(nil)

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPerFetch == 0 {
		cfg.MaxPerFetch = DefaultMaxPerFetch
	}
	return &Client{cfg: cfg}, nil
}

// connect dials, authenticates and selects folder. The connection is closed
// when ctx is done, which unblocks any pending command.
func (c *Client) connect(ctx context.Context, folder string) (*imapclient.Client, func(), error) {
	addr := net.JoinHostPort(c.cfg.Host, c.cfg.Port)

	var client *imapclient.Client
	var err error
	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { client.Close() })
	release := func() {
		stop()
		_ = client.Logout().Wait()
		client.Close()
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("%w for %s: %w", ErrAuthFailed, c.cfg.Username, err)
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("selecting %s: %w", folder, err)
	}
	return client, release, nil
}

// FetchNew returns up to MaxPerFetch messages in folder with a UID above
// sinceUID, oldest first. Bodies are fetched with PEEK so the server's
// seen flags are left alone.
func (c *Client) FetchNew(ctx context.Context, folder string, sinceUID uint32) ([]*core.RawMessage, error) {
	client, release, err := c.connect(ctx, folder)
	if err != nil {
		return nil, err
	}
	defer release()

	// "n:*" always matches the newest message, even when its UID is below n.
	var uidRange goimap.UIDSet
	uidRange.AddRange(goimap.UID(sinceUID+1), 0)
	searchData, err := client.UIDSearch(&goimap.SearchCriteria{UID: []goimap.UIDSet{uidRange}}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", folder, err)
	}

	uids := slices.DeleteFunc(searchData.AllUIDs(), func(uid goimap.UID) bool {
		return uint32(uid) <= sinceUID
	})
	if len(uids) == 0 {
		return nil, nil
	}
	slices.Sort(uids)
	if len(uids) > c.cfg.MaxPerFetch {
		uids = uids[:c.cfg.MaxPerFetch]
	}

	bodySection := &goimap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(goimap.UIDSetNum(uids...), &goimap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*goimap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var messages []*core.RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("collecting message data: %w", err)
		}
		messages = append(messages, fromBuffer(folder, buf, buf.FindBodySection(bodySection)))
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", folder, err)
	}
	return messages, nil
}

// MarkSeen adds the \Seen flag to a message.
func (c *Client) MarkSeen(ctx context.Context, folder string, uid uint32) error {
	client, release, err := c.connect(ctx, folder)
	if err != nil {
		return err
	}
	defer release()

	storeCmd := client.Store(goimap.UIDSetNum(goimap.UID(uid)), &goimap.StoreFlags{
		Op:     goimap.StoreFlagsAdd,
		Silent: true,
		Flags:  []goimap.Flag{goimap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %s/%d seen: %w", folder, uid, err)
	}
	return nil
}

// Ping checks that the server accepts the credentials and folder.
func (c *Client) Ping(ctx context.Context, folder string) error {
	_, release, err := c.connect(ctx, folder)
	if err != nil {
		return err
	}
	release()
	return nil
}

func fromBuffer(folder string, buf *imapclient.FetchMessageBuffer, raw []byte) *core.RawMessage {
	msg := &core.RawMessage{
		UID:        uint32(buf.UID),
		Folder:     folder,
		ReceivedAt: buf.InternalDate.UTC(),
	}

	if env := buf.Envelope; env != nil {
		msg.MessageID = env.MessageID
		msg.Subject = env.Subject
		if len(env.From) > 0 {
			msg.Sender = formatAddress(env.From[0])
		}
		for _, to := range env.To {
			msg.Recipients = append(msg.Recipients, to.Addr())
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = env.Date.UTC()
		}
	}

	if raw != nil {
		parsed := ParseMessage(raw)
		msg.Body = parsed.Text
		msg.HTMLBody = parsed.HTML
		msg.Attachments = parsed.Attachments
		if msg.Subject == "" {
			msg.Subject = parsed.Subject
		}
	}
	return msg
}

func formatAddress(addr goimap.Address) string {
	if addr.Name == "" {
		return addr.Addr()
	}
	return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
}

// Parsed holds the parts of a MIME message the pipeline uses.
type Parsed struct {
	Subject     string
	Text        string
	HTML        string
	Attachments []core.Attachment
}

// ParseMessage extracts the first text/plain and text/html parts and the
// attachment metadata from an RFC 5322 message. Attachment content is
// discarded; Ref records the part position. A message go-message cannot
// parse is returned whole as text.
func ParseMessage(raw []byte) Parsed {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return Parsed{Text: string(raw)}
	}
	defer mr.Close()

	var p Parsed
	p.Subject, _ = mr.Header.Subject()

	for n := 1; ; n++ {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && p.Text == "":
				p.Text = string(body)
			case strings.HasPrefix(contentType, "text/html") && p.HTML == "":
				p.HTML = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				continue
			}
			p.Attachments = append(p.Attachments, core.Attachment{
				Name:        filename,
				ContentType: contentType,
				Size:        size,
				Ref:         fmt.Sprintf("part/%d", n),
			})
		}
	}
	return p
}
