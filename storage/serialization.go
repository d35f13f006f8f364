// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/mailsift/core"
)

// MarshalID serializes an ID to 8 big-endian bytes so byte order matches
// numeric order.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) < 8 {
		return 0, ErrTruncatedData
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

// codec is the subset of a mus serializer used for stored values.
type codec[T any] interface {
	Marshal(v T, bs []byte) int
	Unmarshal(bs []byte) (T, int, error)
	Size(v T) int
}

func marshal[T any](c codec[T], v *T) []byte {
	buf := make([]byte, c.Size(*v))
	c.Marshal(*v, buf)
	return buf
}

func unmarshal[T any](kind string, c codec[T], data []byte) (*T, error) {
	v, n, err := c.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, kind, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrSerializationFailed, kind, len(data)-n)
	}
	return &v, nil
}

// MarshalRecord serializes an EmailRecord to bytes.
func MarshalRecord(record *core.EmailRecord) ([]byte, error) {
	return marshal(core.EmailRecordMUS, record), nil
}

// UnmarshalRecord deserializes an EmailRecord from bytes.
func UnmarshalRecord(data []byte) (*core.EmailRecord, error) {
	return unmarshal[core.EmailRecord]("email record", core.EmailRecordMUS, data)
}

// MarshalRawMessage serializes a RawMessage to bytes.
func MarshalRawMessage(msg *core.RawMessage) ([]byte, error) {
	return marshal(core.RawMessageMUS, msg), nil
}

// UnmarshalRawMessage deserializes a RawMessage from bytes.
func UnmarshalRawMessage(data []byte) (*core.RawMessage, error) {
	return unmarshal[core.RawMessage]("raw message", core.RawMessageMUS, data)
}

// MarshalCursor serializes a Cursor to bytes.
func MarshalCursor(cursor *core.Cursor) ([]byte, error) {
	return marshal(core.CursorMUS, cursor), nil
}

// UnmarshalCursor deserializes a Cursor from bytes.
func UnmarshalCursor(data []byte) (*core.Cursor, error) {
	return unmarshal[core.Cursor]("cursor", core.CursorMUS, data)
}

// MarshalNotification serializes a NotificationEvent to bytes.
func MarshalNotification(event *core.NotificationEvent) ([]byte, error) {
	return marshal(core.NotificationEventMUS, event), nil
}

// UnmarshalNotification deserializes a NotificationEvent from bytes.
func UnmarshalNotification(data []byte) (*core.NotificationEvent, error) {
	return unmarshal[core.NotificationEvent]("notification event", core.NotificationEventMUS, data)
}
