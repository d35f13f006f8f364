package mailbox

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/mailsift/core"
)

// Memory is an in-memory Fetcher. It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	folders  map[string][]*core.RawMessage
	seen     map[string]map[uint32]bool
	failures []error
	fetches  int
}

var _ Fetcher = (*Memory)(nil)

// NewMemory creates an empty mailbox.
func NewMemory() *Memory {
	return &Memory{
		folders: make(map[string][]*core.RawMessage),
		seen:    make(map[string]map[uint32]bool),
	}
}

// Add appends messages to their folders.
func (m *Memory) Add(msgs ...*core.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.folders[msg.Folder] = append(m.folders[msg.Folder], msg)
	}
}

// FailNext makes the next len(errs) fetches fail with errs in order.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Fetches returns how many times FetchNew was called.
func (m *Memory) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Seen reports whether MarkSeen was called for the message.
func (m *Memory) Seen(folder string, uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[folder][uid]
}

// FetchNew returns copies of the messages with UID greater than sinceUID.
func (m *Memory) FetchNew(ctx context.Context, folder string, sinceUID uint32) ([]*core.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}

	var out []*core.RawMessage
	for _, msg := range m.folders[folder] {
		if msg.UID > sinceUID {
			c := *msg
			c.Recipients = slices.Clone(msg.Recipients)
			c.Attachments = slices.Clone(msg.Attachments)
			out = append(out, &c)
		}
	}
	return out, nil
}

// MarkSeen records that the message was seen.
func (m *Memory) MarkSeen(ctx context.Context, folder string, uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.ContainsFunc(m.folders[folder], func(msg *core.RawMessage) bool { return msg.UID == uid }) {
		return fmt.Errorf("no message %d in %s", uid, folder)
	}
	if m.seen[folder] == nil {
		m.seen[folder] = make(map[uint32]bool)
	}
	m.seen[folder][uid] = true
	return nil
}
