package storage

import (
	"bytes"
	"testing"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalID_PreservesOrder(t *testing.T) {
	ids := []core.ID{0, 1, 255, 256, 1 << 40, 18446744073709551615}
	for i := 1; i < len(ids); i++ {
		assert.Negative(t, bytes.Compare(MarshalID(ids[i-1]), MarshalID(ids[i])))
	}
	for _, id := range ids {
		decoded, err := UnmarshalID(MarshalID(id))
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}
}

func TestUnmarshalID_Truncated(t *testing.T) {
	_, err := UnmarshalID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestRecordSerialization_KeepsOptionalFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	pending := &core.EmailRecord{Id: 7, Folder: "INBOX", UID: 3, State: core.StatePending, InsertedAt: now, UpdatedAt: now}

	data, err := MarshalRecord(pending)
	require.NoError(t, err)
	decoded, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.IndexedAt)
	assert.Nil(t, decoded.Entities)
	assert.Equal(t, pending, decoded)

	processed := *pending
	processed.State = core.StateProcessed
	processed.IndexedAt = &now
	processed.Entities = &core.Entities{ActionItems: []string{"reply"}}
	data, err = MarshalRecord(&processed)
	require.NoError(t, err)
	decoded, err = UnmarshalRecord(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.IndexedAt)
	assert.True(t, now.Equal(*decoded.IndexedAt))
	assert.Equal(t, []string{"reply"}, decoded.Entities.ActionItems)
}

func TestRawMessageSerialization(t *testing.T) {
	msg := &core.RawMessage{
		UID:         9,
		Folder:      "Work",
		MessageID:   "<a1@example.com>",
		Sender:      "Ana <ana@example.com>",
		Recipients:  []string{"me@example.com", "team@example.com"},
		Subject:     "Quarterly numbers ✓",
		Body:        "See attached.",
		HTMLBody:    "<p>See attached.</p>",
		ReceivedAt:  time.Date(2025, 3, 1, 8, 30, 0, 123456789, time.UTC),
		Attachments: []core.Attachment{
			{Name: "q1.xlsx", ContentType: "application/vnd.ms-excel", Size: 48213, Ref: "2"},
			{Name: "notes.txt", Size: 12},
		},
	}

	data, err := MarshalRawMessage(msg)
	require.NoError(t, err)
	decoded, err := UnmarshalRawMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded, "nanoseconds survive")
}

func TestNotificationSerialization_ZeroTimes(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &core.NotificationEvent{
		RecordId:      core.RecordID("INBOX", 42),
		Status:        core.NotificationQueued,
		AttemptCount:  2,
		LastAttemptAt: created.Add(time.Minute),
		NextAttemptAt: created.Add(2 * time.Minute),
		LastError:     "connection refused",
		CreatedAt:     created,
	}

	data, err := MarshalNotification(event)
	require.NoError(t, err)
	decoded, err := UnmarshalNotification(data)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
	assert.True(t, decoded.SentAt.IsZero())
}

func TestCursorSerialization(t *testing.T) {
	cursor := &core.Cursor{Folder: "INBOX", LastUID: 4294967295, UpdatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	data, err := MarshalCursor(cursor)
	require.NoError(t, err)
	decoded, err := UnmarshalCursor(data)
	require.NoError(t, err)
	assert.Equal(t, cursor, decoded)
}

func TestUnmarshal_CorruptData(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	data, err := MarshalRecord(&core.EmailRecord{Id: 7, Folder: "INBOX", Subject: "Lunch", State: core.StatePending, InsertedAt: now})
	require.NoError(t, err)

	_, err = UnmarshalRecord(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrSerializationFailed, "truncated")

	_, err = UnmarshalRecord(append(data, 0))
	assert.ErrorIs(t, err, ErrSerializationFailed, "trailing bytes")

	_, err = UnmarshalRecord(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	// A list length far beyond the data is rejected before allocating.
	_, err = UnmarshalRawMessage([]byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff, 0x0f})
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, core.ErrMalformedData)
}
