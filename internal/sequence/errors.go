package sequence

import "errors"

// ErrStepFailed indicates a device command within a step failed. The
// error is caught by the engine and carried in the run's ErrorDetail; it
// never propagates as a fault.
var ErrStepFailed = errors.New("sequence: step failed")
