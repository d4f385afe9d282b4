package asr

import "time"

// Transcript represents a recognition result for one span of speech.
// Both intermediate (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this result is authoritative. Intermediate
	// results are subject to revision until the matching final arrives.
	IsFinal bool

	// Index is the sentence index assigned by the service, starting at 1.
	Index int

	// BeginTime and EndTime locate the utterance relative to stream start.
	BeginTime time.Duration
	EndTime   time.Duration
}

// EventKind discriminates the values delivered on a session's event channel.
type EventKind int

const (
	// EventSessionStarted is emitted when the service acknowledges the
	// transcription start request. Informational; audio may already be flowing.
	EventSessionStarted EventKind = iota

	// EventPartial carries an intermediate transcript. Suitable for live
	// display but must never be classified or stored.
	EventPartial

	// EventFinal carries a complete sentence. Delivered exactly once per
	// sentence.
	EventFinal

	// EventCompleted is emitted when the service reports the transcription
	// task finished. No further transcripts follow on this connection.
	EventCompleted

	// EventServiceFault carries a non-success status from the service. The
	// connection state is unaffected.
	EventServiceFault

	// EventReconnecting is emitted before each automatic reconnection
	// attempt so the caller can surface connection status.
	EventReconnecting

	// EventClosed is emitted after the underlying connection closed and any
	// automatic reconnection has concluded, successfully or not.
	EventClosed
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventSessionStarted:
		return "SESSION_STARTED"
	case EventPartial:
		return "PARTIAL"
	case EventFinal:
		return "FINAL"
	case EventCompleted:
		return "COMPLETED"
	case EventServiceFault:
		return "SERVICE_FAULT"
	case EventReconnecting:
		return "RECONNECTING"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event is a tagged union delivered on a session's event channel. Which
// fields are populated depends on Kind:
//
//   - EventPartial, EventFinal: Transcript
//   - EventServiceFault: Err (an *Error with the service status mapped to a kind)
//   - EventClosed: Err is non-nil when the session terminated abnormally
//     (reconnection exhausted or authentication rejected); nil on clean close.
//
// Events are delivered in the order the service produced them; the channel is
// closed after EventClosed.
type Event struct {
	Kind       EventKind
	Transcript Transcript
	Err        error

	// Attempt is the reconnection attempt number for EventReconnecting.
	Attempt int
}
