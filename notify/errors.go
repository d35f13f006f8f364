package notify

import "errors"

var (
	// ErrNotificationRepositoryRequired is returned when a notification repository is not provided.
	ErrNotificationRepositoryRequired = errors.New("notification repository required")

	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrChannelRequired is returned when no delivery channel is provided.
	ErrChannelRequired = errors.New("notification channel required")
)
