package ingestion

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrCursorRepositoryRequired is returned when a cursor repository is not provided.
	ErrCursorRepositoryRequired = errors.New("cursor repository required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrFetcherRequired is returned when a mailbox fetcher is not provided.
	ErrFetcherRequired = errors.New("mailbox fetcher required")

	// ErrSinkRequired is returned when the poller has nowhere to hand messages.
	ErrSinkRequired = errors.New("message sink required")

	// ErrNoFolders is returned when the poller has no folders to watch.
	ErrNoFolders = errors.New("at least one folder required")

	// ErrPipelineClosed is returned when work is submitted after Close.
	ErrPipelineClosed = errors.New("pipeline closed")

	// ErrBatchCommitted is returned when a batch is committed twice.
	ErrBatchCommitted = errors.New("batch already committed")
)
