package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/mailsift/core"
)

// Key prefixes for different data types
const (
	recordPrefix       = "emlrec:"
	recordDatePrefix   = "emlrcd:"
	rawMessagePrefix   = "emlraw:"
	cursorPrefix       = "cursor:"
	notificationPrefix = "ntfevt:"
)

// makeIDKey generates prefix followed by the big-endian id, so keys sort by id.
func makeIDKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeRecordKey generates a key for an email record by ID.
func makeRecordKey(id core.ID) []byte {
	return makeIDKey(recordPrefix, id)
}

// makeRawMessageKey generates a key for the raw message of a record.
func makeRawMessageKey(id core.ID) []byte {
	return makeIDKey(rawMessagePrefix, id)
}

// makeNotificationKey generates a key for the notification event of a record.
func makeNotificationKey(id core.ID) []byte {
	return makeIDKey(notificationPrefix, id)
}

// makeRecordDateKey generates a composite key for the received-date index.
// Format: prefix:timestamp:id
func makeRecordDateKey(receivedAt time.Time, id core.ID) []byte {
	buf := make([]byte, len(recordDatePrefix)+16)
	offset := copy(buf, recordDatePrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(receivedAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeCursorKey generates a key for the cursor of a folder.
func makeCursorKey(folder string) []byte {
	return []byte(cursorPrefix + folder)
}

// idFromKey extracts the id that follows prefix in key.
func idFromKey(prefix string, key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(prefix):]))
}

// dateKeyID extracts the record id from a date index key.
func dateKeyID(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
