package media

import "errors"

// Sentinel errors for media operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnsafePath indicates a requested path escapes the media base
	// directory. Requests carrying such paths are rejected before any
	// filesystem access.
	ErrUnsafePath = errors.New("media: path escapes base directory")

	// ErrInvalidName indicates a set name contains characters outside the
	// allowed [a-zA-Z0-9._-] alphabet.
	ErrInvalidName = errors.New("media: invalid set name")

	// ErrSetNotFound indicates the named capture set does not exist.
	ErrSetNotFound = errors.New("media: capture set not found")

	// ErrSetExists indicates a capture set with that name already exists.
	ErrSetExists = errors.New("media: capture set already exists")

	// ErrArtifactNotFound indicates the requested artifact does not exist.
	ErrArtifactNotFound = errors.New("media: artifact not found")
)
