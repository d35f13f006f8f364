package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/mailbox"
	"github.com/poiesic/mailsift/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink implements Sink with the same dedup rule as the pipeline.
type memorySink struct {
	mu     sync.Mutex
	seen   map[core.ID]bool
	order  []uint32
	failAt uint32
}

func newMemorySink() *memorySink {
	return &memorySink{seen: make(map[core.ID]bool)}
}

func (s *memorySink) Enqueue(ctx context.Context, raw *core.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt != 0 && raw.UID == s.failAt {
		s.failAt = 0
		return false, errors.New("store unavailable")
	}
	if raw.UID == 0 {
		return false, core.ValidateRawMessage(raw)
	}
	id := raw.RecordID()
	if s.seen[id] {
		return false, nil
	}
	s.seen[id] = true
	s.order = append(s.order, raw.UID)
	return true, nil
}

func (s *memorySink) UIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.order...)
}

func mailboxMessage(folder string, uid uint32) *core.RawMessage {
	return &core.RawMessage{
		UID:        uid,
		Folder:     folder,
		Sender:     "bob@example.com",
		Subject:    "Message",
		Body:       "Body",
		ReceivedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestPoller(t *testing.T, opts ...PollerOption) (*Poller, *mailbox.Memory, *badger.Store, *memorySink) {
	t.Helper()
	store, err := badger.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mb := mailbox.NewMemory()
	sink := newMemorySink()
	p, err := NewPoller(mb, store, sink, opts...)
	require.NoError(t, err)
	return p, mb, store, sink
}

func TestNewPoller_Validation(t *testing.T) {
	store, err := badger.OpenMemory()
	require.NoError(t, err)
	defer store.Close()
	mb := mailbox.NewMemory()
	sink := newMemorySink()

	_, err = NewPoller(nil, store, sink)
	assert.ErrorIs(t, err, ErrFetcherRequired)
	_, err = NewPoller(mb, nil, sink)
	assert.ErrorIs(t, err, ErrCursorRepositoryRequired)
	_, err = NewPoller(mb, store, nil)
	assert.ErrorIs(t, err, ErrSinkRequired)
	_, err = NewPoller(mb, store, sink, WithFolders())
	assert.ErrorIs(t, err, ErrNoFolders)
	_, err = NewPoller(mb, store, sink, WithInterval(0))
	assert.Error(t, err)

	p, err := NewPoller(mb, store, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX"}, p.Folders())
}

func TestPoll_CursorMovesOnlyOnCommit(t *testing.T) {
	p, mb, store, _ := newTestPoller(t)
	ctx := context.Background()
	mb.Add(mailboxMessage("INBOX", 5), mailboxMessage("INBOX", 2), mailboxMessage("INBOX", 9))

	batch, err := p.Poll(ctx, "INBOX")
	require.NoError(t, err)
	require.Len(t, batch.Messages, 3)
	assert.Equal(t, []uint32{2, 5, 9}, []uint32{batch.Messages[0].UID, batch.Messages[1].UID, batch.Messages[2].UID})
	assert.Equal(t, uint32(9), batch.HighestUID())

	cursor, err := store.LoadCursor(ctx, "INBOX")
	require.NoError(t, err)
	assert.Nil(t, cursor, "cursor moved before commit")

	// Polling again without commit returns the same messages.
	again, err := p.Poll(ctx, "INBOX")
	require.NoError(t, err)
	assert.Len(t, again.Messages, 3)

	require.NoError(t, batch.Commit(ctx))
	assert.ErrorIs(t, batch.Commit(ctx), ErrBatchCommitted)

	cursor, err = store.LoadCursor(ctx, "INBOX")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint32(9), cursor.LastUID)

	mb.Add(mailboxMessage("INBOX", 12))
	next, err := p.Poll(ctx, "INBOX")
	require.NoError(t, err)
	require.Len(t, next.Messages, 1)
	assert.Equal(t, uint32(12), next.Messages[0].UID)
}

func TestPoll_EmptyBatchCommitKeepsCursor(t *testing.T) {
	p, _, store, _ := newTestPoller(t)
	ctx := context.Background()
	require.NoError(t, store.SaveCursor(ctx, &core.Cursor{Folder: "INBOX", LastUID: 4}))

	batch, err := p.Poll(ctx, "INBOX")
	require.NoError(t, err)
	assert.Empty(t, batch.Messages)
	assert.Equal(t, uint32(4), batch.HighestUID())
	require.NoError(t, batch.Commit(ctx))

	cursor, err := store.LoadCursor(ctx, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), cursor.LastUID)
}

func TestPoll_TransportFailureIsTransient(t *testing.T) {
	p, mb, store, _ := newTestPoller(t)
	ctx := context.Background()
	mb.Add(mailboxMessage("INBOX", 1))
	mb.FailNext(errors.New("connection reset"))

	_, err := p.Poll(ctx, "INBOX")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientTransport)

	cursor, err := store.LoadCursor(ctx, "INBOX")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestRunCycle_HandsOffAndCommits(t *testing.T) {
	p, mb, store, sink := newTestPoller(t, WithFolders("INBOX", "Work"), WithMarkSeen(true))
	ctx := context.Background()
	mb.Add(mailboxMessage("INBOX", 1), mailboxMessage("INBOX", 2), mailboxMessage("Work", 1))

	stats, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 3, stats.New)
	assert.True(t, mb.Seen("INBOX", 2))
	assert.True(t, mb.Seen("Work", 1))

	for folder, want := range map[string]uint32{"INBOX": 2, "Work": 1} {
		cursor, err := store.LoadCursor(ctx, folder)
		require.NoError(t, err)
		assert.Equal(t, want, cursor.LastUID, folder)
	}

	stats, err = p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Fetched)
	assert.Equal(t, []uint32{1, 2, 1}, sink.UIDs())
}

func TestRunCycle_FailedHandoffLeavesCursor(t *testing.T) {
	p, mb, store, sink := newTestPoller(t)
	ctx := context.Background()
	mb.Add(mailboxMessage("INBOX", 1), mailboxMessage("INBOX", 2), mailboxMessage("INBOX", 3))
	sink.failAt = 2

	_, err := p.RunCycle(ctx)
	require.Error(t, err)

	cursor, err := store.LoadCursor(ctx, "INBOX")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	// The next cycle refetches everything; dedup drops the message already handed off.
	stats, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, []uint32{1, 2, 3}, sink.UIDs())

	cursor, err = store.LoadCursor(ctx, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), cursor.LastUID)
}

func TestRunCycle_OneFolderFailingDoesNotBlockOthers(t *testing.T) {
	p, mb, store, _ := newTestPoller(t, WithFolders("INBOX", "Work"))
	ctx := context.Background()
	mb.Add(mailboxMessage("Work", 8))
	mb.FailNext(errors.New("timeout"))

	stats, err := p.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientTransport)
	assert.Equal(t, 1, stats.New)

	cursor, err := store.LoadCursor(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, uint32(8), cursor.LastUID)
}

func TestRun_StopsOnCancel(t *testing.T) {
	p, mb, _, sink := newTestPoller(t, WithInterval(5*time.Millisecond))
	mb.Add(mailboxMessage("INBOX", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return mb.Fetches() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, []uint32{1}, sink.UIDs())
}
