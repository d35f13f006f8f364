// Package ingestion turns mailbox messages into processed email records.
//
// The Poller reads new messages from each configured folder, past the
// persisted per-folder cursor, and hands them to the Pipeline. The cursor
// only advances once every message of a batch was handed off, so a crash
// between fetch and handoff re-fetches rather than loses mail.
//
// The Pipeline deduplicates by record id, stores a pending record with its
// raw message, and processes it on a worker pool:
//   - summarize the message text
//   - classify the summary into a category and importance
//   - embed the summary and persist the processed record
//   - upsert the vector index entry
//   - enqueue a notification for high-importance mail
//
// Gateway failures mark a record failed. Contract violations, such as an
// embedding of the wrong dimension, also quarantine it so it is not
// retried automatically. Cancelled work leaves the record pending for
// Recover to pick up.
package ingestion
