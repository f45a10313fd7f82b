package recording

import "errors"

var (
	// ErrInvalidSpeed is returned for a playback speed that is not positive.
	ErrInvalidSpeed = errors.New("recording: playback speed must be greater than zero")

	// ErrInvalidLoops is returned when a finite playback has no loops.
	ErrInvalidLoops = errors.New("recording: loop count must be at least 1")

	// ErrNotFound is returned when a named recording does not exist.
	ErrNotFound = errors.New("recording: not found")

	// ErrClosed is returned when writing to a closed sink.
	ErrClosed = errors.New("recording: sink closed")

	// ErrMalformedRow is returned when a JSON row cannot be decoded.
	ErrMalformedRow = errors.New("recording: malformed row")
)
