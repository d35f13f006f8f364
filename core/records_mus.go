package core

import (
	"errors"
	"time"

	mus "github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// ErrMalformedData is returned when encoded data declares a length longer
// than the bytes left or an out-of-range value.
var ErrMalformedData = errors.New("malformed encoded data")

var (
	IDMUS                = idMUS{}
	AttachmentMUS        = attachmentMUS{}
	RawMessageMUS        = rawMessageMUS{}
	EntitiesMUS          = entitiesMUS{}
	EmailRecordMUS       = emailRecordMUS{}
	NotificationEventMUS = notificationEventMUS{}
	CursorMUS            = cursorMUS{}
)

var (
	_ mus.Serializer[ID]                = IDMUS
	_ mus.Serializer[Attachment]        = AttachmentMUS
	_ mus.Serializer[RawMessage]        = RawMessageMUS
	_ mus.Serializer[Entities]          = EntitiesMUS
	_ mus.Serializer[EmailRecord]       = EmailRecordMUS
	_ mus.Serializer[NotificationEvent] = NotificationEventMUS
	_ mus.Serializer[Cursor]            = CursorMUS
)

// skip implements Skip on top of Unmarshal for the struct serializers.
func skip[T any](unmarshal func([]byte) (T, int, error), bs []byte) (int, error) {
	_, n, err := unmarshal(bs)
	return n, err
}

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int { return varint.Uint64.Size(uint64(v)) }

func (idMUS) Skip(bs []byte) (int, error) { return varint.Uint64.Skip(bs) }

// Times are stored as Unix seconds plus nanoseconds and decode in UTC.
// The zero time survives the round trip.

func marshalTime(v time.Time, bs []byte) int {
	n := varint.Int64.Marshal(v.Unix(), bs)
	return n + varint.Int64.Marshal(int64(v.Nanosecond()), bs[n:])
}

func unmarshalTime(bs []byte) (v time.Time, n int, err error) {
	sec, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return
	}
	nsec, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if nsec < 0 || nsec >= int64(time.Second) {
		return v, n, ErrMalformedData
	}
	return time.Unix(sec, nsec).UTC(), n, nil
}

func sizeTime(v time.Time) int {
	return varint.Int64.Size(v.Unix()) + varint.Int64.Size(int64(v.Nanosecond()))
}

func marshalTimePtr(v *time.Time, bs []byte) int {
	n := ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += marshalTime(*v, bs[n:])
	}
	return n
}

func unmarshalTimePtr(bs []byte) (*time.Time, int, error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return nil, n, err
	}
	v, n1, err := unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return nil, n, err
	}
	return &v, n, nil
}

func sizeTimePtr(v *time.Time) int {
	size := ord.Bool.Size(v != nil)
	if v != nil {
		size += sizeTime(*v)
	}
	return size
}

func marshalStrings(v []string, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

// unmarshalStrings decodes an empty list as nil.
func unmarshalStrings(bs []byte) (v []string, n int, err error) {
	length, n, err := unmarshalLength(bs)
	if err != nil || length == 0 {
		return
	}
	v = make([]string, length)
	var n1 int
	for i := range v {
		v[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return
}

func sizeStrings(v []string) int {
	size := varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return size
}

// unmarshalLength decodes a list length. Every element takes at least one
// byte, which bounds the length by the bytes left.
func unmarshalLength(bs []byte) (int, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return 0, n, err
	}
	if length < 0 || length > len(bs)-n {
		return 0, n, ErrMalformedData
	}
	return length, n, nil
}

type attachmentMUS struct{}

func (attachmentMUS) Marshal(v Attachment, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += ord.String.Marshal(v.ContentType, bs[n:])
	n += varint.Int64.Marshal(v.Size, bs[n:])
	n += ord.String.Marshal(v.Ref, bs[n:])
	return
}

func (attachmentMUS) Unmarshal(bs []byte) (v Attachment, n int, err error) {
	v.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.ContentType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Size, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Ref, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (attachmentMUS) Size(v Attachment) int {
	return ord.String.Size(v.Name) + ord.String.Size(v.ContentType) +
		varint.Int64.Size(v.Size) + ord.String.Size(v.Ref)
}

func (s attachmentMUS) Skip(bs []byte) (int, error) { return skip(s.Unmarshal, bs) }

type rawMessageMUS struct{}

func (rawMessageMUS) Marshal(v RawMessage, bs []byte) (n int) {
	n = varint.Uint32.Marshal(v.UID, bs)
	n += ord.String.Marshal(v.Folder, bs[n:])
	n += ord.String.Marshal(v.MessageID, bs[n:])
	n += ord.String.Marshal(v.Sender, bs[n:])
	n += marshalStrings(v.Recipients, bs[n:])
	n += ord.String.Marshal(v.Subject, bs[n:])
	n += ord.String.Marshal(v.Body, bs[n:])
	n += ord.String.Marshal(v.HTMLBody, bs[n:])
	n += marshalTime(v.ReceivedAt, bs[n:])
	n += varint.Int.Marshal(len(v.Attachments), bs[n:])
	for _, a := range v.Attachments {
		n += AttachmentMUS.Marshal(a, bs[n:])
	}
	return
}

func (rawMessageMUS) Unmarshal(bs []byte) (v RawMessage, n int, err error) {
	v.UID, n, err = varint.Uint32.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	for _, field := range []*string{&v.Folder, &v.MessageID, &v.Sender} {
		*field, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Recipients, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, field := range []*string{&v.Subject, &v.Body, &v.HTMLBody} {
		*field, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.ReceivedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	length, n1, err := unmarshalLength(bs[n:])
	n += n1
	if err != nil || length == 0 {
		return
	}
	v.Attachments = make([]Attachment, length)
	for i := range v.Attachments {
		v.Attachments[i], n1, err = AttachmentMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (rawMessageMUS) Size(v RawMessage) int {
	size := varint.Uint32.Size(v.UID) +
		ord.String.Size(v.Folder) +
		ord.String.Size(v.MessageID) +
		ord.String.Size(v.Sender) +
		sizeStrings(v.Recipients) +
		ord.String.Size(v.Subject) +
		ord.String.Size(v.Body) +
		ord.String.Size(v.HTMLBody) +
		sizeTime(v.ReceivedAt) +
		varint.Int.Size(len(v.Attachments))
	for _, a := range v.Attachments {
		size += AttachmentMUS.Size(a)
	}
	return size
}

func (s rawMessageMUS) Skip(bs []byte) (int, error) { return skip(s.Unmarshal, bs) }

type entitiesMUS struct{}

func (entitiesMUS) Marshal(v Entities, bs []byte) (n int) {
	n = marshalStrings(v.KeyPoints, bs)
	n += marshalStrings(v.ActionItems, bs[n:])
	n += marshalStrings(v.ImportantDates, bs[n:])
	n += marshalStrings(v.Contacts, bs[n:])
	return
}

func (entitiesMUS) Unmarshal(bs []byte) (v Entities, n int, err error) {
	var n1 int
	for _, field := range []*[]string{&v.KeyPoints, &v.ActionItems, &v.ImportantDates, &v.Contacts} {
		*field, n1, err = unmarshalStrings(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (entitiesMUS) Size(v Entities) int {
	return sizeStrings(v.KeyPoints) + sizeStrings(v.ActionItems) +
		sizeStrings(v.ImportantDates) + sizeStrings(v.Contacts)
}

func (s entitiesMUS) Skip(bs []byte) (int, error) { return skip(s.Unmarshal, bs) }

type emailRecordMUS struct{}

func (emailRecordMUS) Marshal(v EmailRecord, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Folder, bs[n:])
	n += varint.Uint32.Marshal(v.UID, bs[n:])
	n += ord.String.Marshal(v.Subject, bs[n:])
	n += ord.String.Marshal(v.Sender, bs[n:])
	n += marshalStrings(v.Recipients, bs[n:])
	n += marshalTime(v.ReceivedAt, bs[n:])
	n += ord.String.Marshal(v.Summary, bs[n:])
	n += ord.String.Marshal(string(v.Category), bs[n:])
	n += ord.String.Marshal(string(v.Importance), bs[n:])
	n += ord.Bool.Marshal(v.Entities != nil, bs[n:])
	if v.Entities != nil {
		n += EntitiesMUS.Marshal(*v.Entities, bs[n:])
	}
	n += ord.String.Marshal(string(v.State), bs[n:])
	n += ord.String.Marshal(v.FailureReason, bs[n:])
	n += ord.Bool.Marshal(v.Quarantined, bs[n:])
	n += varint.Int.Marshal(v.Attempts, bs[n:])
	n += marshalTimePtr(v.IndexedAt, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (emailRecordMUS) Unmarshal(bs []byte) (v EmailRecord, n int, err error) {
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var (
		n1 int
		s  string
	)
	v.Folder, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UID, n1, err = varint.Uint32.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, field := range []*string{&v.Subject, &v.Sender} {
		*field, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Recipients, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ReceivedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Summary, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Category = Category(s)
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Importance = Importance(s)

	present, n1, err := ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if present {
		var entities Entities
		entities, n1, err = EntitiesMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		v.Entities = &entities
	}

	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.State = ProcessingState(s)
	v.FailureReason, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Quarantined, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Attempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.IndexedAt, n1, err = unmarshalTimePtr(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (emailRecordMUS) Size(v EmailRecord) int {
	size := IDMUS.Size(v.Id) +
		ord.String.Size(v.Folder) +
		varint.Uint32.Size(v.UID) +
		ord.String.Size(v.Subject) +
		ord.String.Size(v.Sender) +
		sizeStrings(v.Recipients) +
		sizeTime(v.ReceivedAt) +
		ord.String.Size(v.Summary) +
		ord.String.Size(string(v.Category)) +
		ord.String.Size(string(v.Importance)) +
		ord.Bool.Size(v.Entities != nil)
	if v.Entities != nil {
		size += EntitiesMUS.Size(*v.Entities)
	}
	return size +
		ord.String.Size(string(v.State)) +
		ord.String.Size(v.FailureReason) +
		ord.Bool.Size(v.Quarantined) +
		varint.Int.Size(v.Attempts) +
		sizeTimePtr(v.IndexedAt) +
		sizeTime(v.InsertedAt) +
		sizeTime(v.UpdatedAt)
}

func (s emailRecordMUS) Skip(bs []byte) (int, error) { return skip(s.Unmarshal, bs) }

type notificationEventMUS struct{}

func (notificationEventMUS) Marshal(v NotificationEvent, bs []byte) (n int) {
	n = IDMUS.Marshal(v.RecordId, bs)
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += varint.Int.Marshal(v.AttemptCount, bs[n:])
	n += marshalTime(v.LastAttemptAt, bs[n:])
	n += marshalTime(v.NextAttemptAt, bs[n:])
	n += ord.String.Marshal(v.LastError, bs[n:])
	n += marshalTime(v.SentAt, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	return
}

func (notificationEventMUS) Unmarshal(bs []byte) (v NotificationEvent, n int, err error) {
	v.RecordId, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	status, n1, err := ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = NotificationStatus(status)
	v.AttemptCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, field := range []*time.Time{&v.LastAttemptAt, &v.NextAttemptAt} {
		*field, n1, err = unmarshalTime(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.LastError, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, field := range []*time.Time{&v.SentAt, &v.CreatedAt} {
		*field, n1, err = unmarshalTime(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (notificationEventMUS) Size(v NotificationEvent) int {
	return IDMUS.Size(v.RecordId) +
		ord.String.Size(string(v.Status)) +
		varint.Int.Size(v.AttemptCount) +
		sizeTime(v.LastAttemptAt) +
		sizeTime(v.NextAttemptAt) +
		ord.String.Size(v.LastError) +
		sizeTime(v.SentAt) +
		sizeTime(v.CreatedAt)
}

func (s notificationEventMUS) Skip(bs []byte) (int, error) { return skip(s.Unmarshal, bs) }

type cursorMUS struct{}

func (cursorMUS) Marshal(v Cursor, bs []byte) (n int) {
	n = ord.String.Marshal(v.Folder, bs)
	n += varint.Uint32.Marshal(v.LastUID, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (cursorMUS) Unmarshal(bs []byte) (v Cursor, n int, err error) {
	v.Folder, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.LastUID, n1, err = varint.Uint32.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (cursorMUS) Size(v Cursor) int {
	return ord.String.Size(v.Folder) + varint.Uint32.Size(v.LastUID) + sizeTime(v.UpdatedAt)
}

func (s cursorMUS) Skip(bs []byte) (int, error) { return skip(s.Unmarshal, bs) }
