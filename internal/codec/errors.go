package codec

import "errors"

var (
	// ErrInvalidJSON is returned when a JSON message cannot be parsed.
	ErrInvalidJSON = errors.New("codec: invalid JSON")

	// ErrInvalidMsgpack is returned when a payload is not exactly one
	// MessagePack value.
	ErrInvalidMsgpack = errors.New("codec: invalid MessagePack")
)
