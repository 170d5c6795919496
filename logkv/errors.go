package logkv

import "errors"

var (
	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("logkv: key cannot be empty")

	// ErrClosed is returned by writes to a closed Store.
	ErrClosed = errors.New("logkv: store is closed")

	// ErrFailed is returned by writes after a failed write could not be
	// undone. The store must be reopened.
	ErrFailed = errors.New("logkv: log has an unfinished write, reopen the store")
)
