package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifications_CreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateNotification(ctx, &core.NotificationEvent{RecordId: 1, Status: core.NotificationQueued})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateNotification(ctx, &core.NotificationEvent{RecordId: 1, Status: core.NotificationQueued})
	require.NoError(t, err)
	assert.False(t, created)

	event, err := store.GetNotification(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.NotificationQueued, event.Status)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestNotifications_UpdateAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for id := core.ID(1); id <= 3; id++ {
		_, err := store.CreateNotification(ctx, &core.NotificationEvent{RecordId: id, Status: core.NotificationQueued})
		require.NoError(t, err)
	}

	event, err := store.GetNotification(ctx, 2)
	require.NoError(t, err)
	event.Status = core.NotificationSent
	event.AttemptCount = 1
	event.SentAt = time.Now().UTC()
	require.NoError(t, store.UpdateNotification(ctx, event))

	queued, err := store.ListNotifications(ctx, core.NotificationQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, core.ID(1), queued[0].RecordId)
	assert.Equal(t, core.ID(3), queued[1].RecordId)

	all, err := store.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sent, err := store.GetNotification(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, sent.AttemptCount)
	assert.False(t, sent.SentAt.IsZero())
}

func TestNotifications_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetNotification(ctx, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.UpdateNotification(ctx, &core.NotificationEvent{RecordId: 5})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
