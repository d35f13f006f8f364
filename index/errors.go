package index

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroVector indicates a vector with zero magnitude, for which cosine
	// similarity is undefined.
	ErrZeroVector = errors.New("zero vector")

	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("index entry not found")

	// ErrClosed indicates the index has been closed.
	ErrClosed = errors.New("index is closed")
)
