package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for email records.
// It is derived from the message's folder and UID so that the same
// message always maps to the same record.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// RecordID derives the record ID for a message identified by folder and UID.
func RecordID(folder string, uid uint32) ID {
	return IDFromContent(folder + "\x00" + strconv.FormatUint(uint64(uid), 10))
}

// String renders the ID as fixed-width hex, the form used by the CLI.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses an ID rendered by String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	return ID(v), nil
}

// Attachment describes a file attached to a message. The content itself
// stays with the mailbox; Ref locates it there.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Ref         string `json:"ref,omitempty"`
}

// RawMessage is a message as fetched from the mailbox. It is never mutated
// after ingestion.
type RawMessage struct {
	UID         uint32       `json:"uid"`
	Folder      string       `json:"folder"`
	MessageID   string       `json:"message_id,omitempty"`
	Sender      string       `json:"sender"`
	Recipients  []string     `json:"recipients,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body,omitempty"`
	HTMLBody    string       `json:"html_body,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// RecordID returns the ID of the record derived from this message.
func (m *RawMessage) RecordID() ID {
	return RecordID(m.Folder, m.UID)
}

// Category is the topical class of a message.
type Category string

const (
	CategoryWork          Category = "work"
	CategoryEducation     Category = "education"
	CategoryCommunity     Category = "community"
	CategoryAdvertisement Category = "advertisement"
	CategoryNotification  Category = "notification"
	CategoryPersonal      Category = "personal"
	CategoryOther         Category = "other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryWork,
	CategoryEducation,
	CategoryCommunity,
	CategoryAdvertisement,
	CategoryNotification,
	CategoryPersonal,
	CategoryOther,
}

// Importance ranks how urgently a message needs attention.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Importances lists every valid importance level, highest first.
var Importances = []Importance{
	ImportanceHigh,
	ImportanceMedium,
	ImportanceLow,
}

// Rank orders importance levels; higher is more important. Unknown values rank 0.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 1
	}
	return 0
}

// ProcessingState tracks a record through the pipeline.
type ProcessingState string

const (
	StatePending   ProcessingState = "pending"
	StateProcessed ProcessingState = "processed"
	StateFailed    ProcessingState = "failed"
)

// Entities holds key facts extracted alongside the summary.
type Entities struct {
	KeyPoints      []string `json:"key_points,omitempty"`
	ActionItems    []string `json:"action_items,omitempty"`
	ImportantDates []string `json:"important_dates,omitempty"`
	Contacts       []string `json:"contacts,omitempty"`
}

// IsEmpty reports whether no facts were extracted.
func (e *Entities) IsEmpty() bool {
	return e == nil || len(e.KeyPoints)+len(e.ActionItems)+len(e.ImportantDates)+len(e.Contacts) == 0
}

// EmailRecord is the structured result of processing one RawMessage.
type EmailRecord struct {
	Id            ID              `json:"id"`
	Folder        string          `json:"folder"`
	UID           uint32          `json:"uid"`
	Subject       string          `json:"subject"`
	Sender        string          `json:"sender"`
	Recipients    []string        `json:"recipients,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	Summary       string          `json:"summary,omitempty"`
	Category      Category        `json:"category,omitempty"`
	Importance    Importance      `json:"importance,omitempty"`
	Entities      *Entities       `json:"entities,omitempty"`
	State         ProcessingState `json:"state"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Quarantined   bool            `json:"quarantined,omitempty"` // contract violation, never retried automatically
	Attempts      int             `json:"attempts"`
	IndexedAt     *time.Time      `json:"indexed_at,omitempty"`
	InsertedAt    time.Time       `json:"inserted_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewPendingRecord creates the pending record for a freshly ingested message.
func NewPendingRecord(msg *RawMessage) *EmailRecord {
	return &EmailRecord{
		Id:         msg.RecordID(),
		Folder:     msg.Folder,
		UID:        msg.UID,
		Subject:    msg.Subject,
		Sender:     msg.Sender,
		Recipients: msg.Recipients,
		ReceivedAt: msg.ReceivedAt,
		State:      StatePending,
	}
}

// IsIndexed reports whether a vector index entry exists for the record.
func (r *EmailRecord) IsIndexed() bool {
	return r.IndexedAt != nil
}

// NotificationStatus is the lifecycle state of a notification event.
type NotificationStatus string

const (
	NotificationQueued    NotificationStatus = "queued"
	NotificationSent      NotificationStatus = "sent"
	NotificationExhausted NotificationStatus = "exhausted"
)

// IsTerminal reports whether no further delivery attempts happen.
func (s NotificationStatus) IsTerminal() bool {
	return s == NotificationSent || s == NotificationExhausted
}

// NotificationEvent tracks delivery of the notification for one record.
type NotificationEvent struct {
	RecordId      ID                 `json:"record_id"`
	Status        NotificationStatus `json:"status"`
	AttemptCount  int                `json:"attempt_count"`
	LastAttemptAt time.Time          `json:"last_attempt_at,omitzero"`
	NextAttemptAt time.Time          `json:"next_attempt_at,omitzero"`
	LastError     string             `json:"last_error,omitempty"`
	SentAt        time.Time          `json:"sent_at,omitzero"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Cursor is the last ingested position of a mailbox folder.
type Cursor struct {
	Folder    string    `json:"folder"`
	LastUID   uint32    `json:"last_uid"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents a search result with the full record and relevance score.
type SearchResult struct {
	Record *EmailRecord
	Score  float32
}

// Stats summarizes the contents of the system.
type Stats struct {
	TotalRecords  int                        `json:"total_records"`
	ByState       map[ProcessingState]int    `json:"by_state"`
	ByCategory    map[Category]int           `json:"by_category"`
	ByImportance  map[Importance]int         `json:"by_importance"`
	Indexed       int                        `json:"indexed"`
	IndexEntries  int                        `json:"index_entries"`
	Notifications map[NotificationStatus]int `json:"notifications"`
	LatestAt      time.Time                  `json:"latest_received_at,omitzero"`
}
