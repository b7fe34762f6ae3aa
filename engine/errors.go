package engine

import "errors"

// Sentinel errors surfaced by engine operations. Callers compare with
// errors.Is; NotFound conditions (absent key, pop of an empty list) are
// not represented as errors — operations return a zero value and a
// presence flag instead, per spec.
var (
	// ErrWrongType is returned when an operation's variant requirement
	// (string vs list) doesn't match the stored entry's tag.
	ErrWrongType = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")

	// ErrBadFormat is returned by snapshot Load when the header line is
	// missing or doesn't match the expected magic string.
	ErrBadFormat = errors.New("bad snapshot format")

	// ErrTruncated is returned by snapshot Load when EOF is hit in the
	// middle of a record.
	ErrTruncated = errors.New("truncated snapshot record")

	// ErrStopped is returned by the task queue when Enqueue is called
	// after Stop has completed.
	ErrStopped = errors.New("task queue stopped")
)
