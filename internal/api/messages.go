package api

import "encoding/json"

// Frontend action vocabulary. Unknown actions are rejected before any
// device traffic.
const (
	ActionPing             = "ping"
	ActionListCameras      = "list_cameras"
	ActionSelectCamera     = "select_camera"
	ActionDeselectCamera   = "deselect_camera"
	ActionGetConfig        = "get_config"
	ActionSetConfig        = "set_config"
	ActionCaptureImage     = "capture_image"
	ActionGetLightStates   = "get_light_states"
	ActionSetLightState    = "set_light_state"
	ActionStartStream      = "start_stream"
	ActionStopStream       = "stop_stream"
	ActionRunCaptureSet    = "run_capture_set"
	ActionListCaptureSets  = "list_capture_sets"
	ActionGetCaptureSet    = "get_capture_set"
	ActionDeleteCaptureSet = "delete_capture_set"
	ActionGetArtifact      = "get_artifact"

	// ActionProgress tags step-level progress events pushed to the client
	// that owns a running capture set.
	ActionProgress = "capture_set_progress"
)

// ClientRequest is one inbound frontend message.
type ClientRequest struct {
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id"`
}

// Envelope is the only externally visible shape of a completed operation.
// Every request produces exactly one envelope carrying the caller's
// request id, validation failures included.
type Envelope struct {
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id"`
}

// successEnvelope builds a success envelope.
func successEnvelope(action string, data any, requestID string) *Envelope {
	return &Envelope{
		Action:    action,
		Success:   true,
		Data:      data,
		RequestID: requestID,
	}
}

// errorEnvelope builds a failure envelope.
func errorEnvelope(action, message, requestID string) *Envelope {
	return &Envelope{
		Action:    action,
		Success:   false,
		Error:     message,
		RequestID: requestID,
	}
}
