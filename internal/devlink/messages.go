package devlink

import "encoding/json"

// Request is the framed message sent to the device server.
// A nil Payload marshals as JSON null.
type Request struct {
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id"`
}

// Response is a completed device operation.
//
// Success=false with a non-empty Error carries the device's own error text
// verbatim. Transport failures never produce a Response; they surface as
// errors from Send.
type Response struct {
	Action    string          `json:"action"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id"`
}

// Frame is an unsolicited preview frame pushed by the device server.
// Frames carry no correlation id and are forwarded as-is to the single
// stream subscriber.
type Frame struct {
	Type     string `json:"type"`
	Frame    string `json:"frame"`
	Mimetype string `json:"mimetype"`
}

// frameMessageType tags unsolicited stream frames on the wire.
const frameMessageType = "frame"

// inboundMessage is the superset shape used to classify inbound traffic.
// Frames carry Type=="frame"; responses carry a request_id; anything else
// goes to the diagnostic listener list.
type inboundMessage struct {
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
	Frame     string          `json:"frame"`
	Mimetype  string          `json:"mimetype"`
}
