package devlink

import "errors"

// Sentinel errors for device link operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected indicates the link to the device server is down and
	// a reconnect attempt did not bring it up.
	ErrNotConnected = errors.New("devlink: not connected")

	// ErrConnectionFailed indicates the initial connection could not be
	// established.
	ErrConnectionFailed = errors.New("devlink: connection failed")

	// ErrConnectionLost indicates the link dropped while a request was in
	// flight. Every pending request is failed with this error.
	ErrConnectionLost = errors.New("devlink: connection lost")

	// ErrTimeout indicates no response arrived within the request budget.
	// The pending entry is removed before this error is returned.
	ErrTimeout = errors.New("devlink: request timed out")

	// ErrProtocol indicates an inbound message could not be parsed.
	ErrProtocol = errors.New("devlink: protocol error")

	// ErrDuplicateID indicates a correlation id was registered twice.
	// Should not occur with generated ids.
	ErrDuplicateID = errors.New("devlink: duplicate correlation id")
)
