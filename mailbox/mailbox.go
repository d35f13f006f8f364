// Package mailbox defines the transport the ingestion poller reads from.
//
// The imap subpackage implements Fetcher against an IMAP server. Memory is
// an in-process mailbox used by tests and dry runs.
package mailbox

import (
	"context"

	"github.com/poiesic/mailsift/core"
)

// Fetcher retrieves messages from a mailbox.
type Fetcher interface {
	// FetchNew returns the messages in folder whose UID is greater than
	// sinceUID. Order is unspecified; callers sort.
	FetchNew(ctx context.Context, folder string, sinceUID uint32) ([]*core.RawMessage, error)

	// MarkSeen flags a message as read on the server.
	MarkSeen(ctx context.Context, folder string, uid uint32) error
}
