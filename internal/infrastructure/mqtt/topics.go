package mqtt

import "fmt"

// Topic prefixes for rigbridge MQTT traffic.
//
// Scheme: rigbridge/{category}/{subject}
const (
	// TopicPrefix is the base for all rigbridge topics.
	TopicPrefix = "rigbridge"

	// TopicPrefixEvent is the base for event topics.
	TopicPrefixEvent = "rigbridge/event"

	// TopicPrefixStatus is the base for retained status topics.
	TopicPrefixStatus = "rigbridge/status"
)

// Topics provides builders for rigbridge MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.SequenceEvent()
//	// Returns: "rigbridge/event/sequence"
type Topics struct{}

// SequenceEvent returns the topic for capture-sequence lifecycle events
// (started, completed, failed).
//
// Example: rigbridge/event/sequence
func (Topics) SequenceEvent() string {
	return fmt.Sprintf("%s/sequence", TopicPrefixEvent)
}

// CaptureEvent returns the topic for individual capture events.
//
// Example: rigbridge/event/capture
func (Topics) CaptureEvent() string {
	return fmt.Sprintf("%s/capture", TopicPrefixEvent)
}

// LinkStatus returns the retained topic for device-link state
// (connected/disconnected).
//
// Example: rigbridge/status/link
func (Topics) LinkStatus() string {
	return fmt.Sprintf("%s/link", TopicPrefixStatus)
}

// ServiceStatus returns the retained topic for service online/offline status.
// Also used as the LWT topic.
//
// Example: rigbridge/status/service
func (Topics) ServiceStatus() string {
	return fmt.Sprintf("%s/service", TopicPrefixStatus)
}
