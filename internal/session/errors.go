package session

import "errors"

// Sentinel errors for slot conflicts.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStreamActive indicates the preview stream slot is already held
	// by another client.
	ErrStreamActive = errors.New("session: stream already active")

	// ErrSequenceActive indicates a capture sequence is already running.
	ErrSequenceActive = errors.New("session: sequence already active")
)
