package server

import "errors"

var (
	// ErrRegistryUnavailable is returned when the registry has stopped or
	// does not answer a Connect before the session's deadline.
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrMalformedFrame marks an inbound chat frame that is not {"message": string}.
	ErrMalformedFrame = errors.New("malformed chat frame")
	// ErrInvalidRoom marks a room path segment that is not a 32-bit integer.
	ErrInvalidRoom = errors.New("invalid room id")
)
