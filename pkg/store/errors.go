package store

import "errors"

// Sentinel errors for session lookup and creation.
var (
	// ErrInvalidSessionID is returned when a supplied session id does not
	// match the allowed charset/length pattern.
	ErrInvalidSessionID = errors.New("store: invalid session id")

	// ErrSessionNotFound is returned by Get with autoCreate disabled when
	// the session does not exist.
	ErrSessionNotFound = errors.New("store: session not found")
)
