package layer

import "errors"

var (
	// ErrExists is returned by Insert when an item with an equal key is
	// already present. Callers may fall back to ReplaceOrInsert or
	// MergeInto.
	ErrExists = errors.New("item already exists")

	// ErrInvalidBound is returned by Seek for Excluded bounds. This is a
	// programming error, not a recoverable runtime condition.
	ErrInvalidBound = errors.New("excluded bounds are not supported")

	// ErrClosed is returned by operations on a layer after Close.
	ErrClosed = errors.New("layer is closed")

	// ErrCorrupt marks a persisted layer whose encoding failed validation.
	ErrCorrupt = errors.New("corrupt layer")
)
