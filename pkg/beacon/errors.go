package beacon

import "errors"

var (
	// ErrInvalidLength is returned when a frame is not exactly PayloadSize bytes.
	ErrInvalidLength = errors.New("beacon: invalid payload length")

	// ErrUnknownMarker is returned when the marker byte is not a recognized value.
	ErrUnknownMarker = errors.New("beacon: unknown marker")

	// ErrInvalidSessionID is returned when a session id string cannot be parsed.
	ErrInvalidSessionID = errors.New("beacon: invalid session id")
)
