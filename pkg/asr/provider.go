// Package asr defines the Recognizer interface for streaming speech
// recognition backends.
//
// A recognizer wraps a real-time transcription service and exposes a uniform
// streaming interface. The central abstraction is StreamSession: once opened,
// a session accepts raw PCM audio frames and emits a single ordered stream of
// Event values — intermediate transcripts for live display, final transcripts
// for the issue log, and lifecycle/fault notifications.
//
// Implementations must be safe for concurrent use. The event channel is
// single-producer; consumers that process events on one goroutine get the
// ordering guarantee that classification of one final completes before the
// next event is handled.
package asr

import "context"

// StreamConfig describes the audio format for a new recognition session.
// The wire format is fixed by the service: 16-bit little-endian signed PCM.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The road-test logger always
	// uses 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int
}

// StreamSession represents an open streaming recognition session.
//
// Callers must call Close when the session is no longer needed. All methods
// are safe for concurrent use.
type StreamSession interface {
	// SendAudio forwards a chunk of raw PCM audio to the service. Chunks
	// handed over while the connection is not open are dropped, not queued;
	// SendAudio reports a dropped chunk with a nil error because real-time
	// loss is expected during reconnects.
	SendAudio(chunk []byte) error

	// Ready reports whether the session is currently able to deliver audio
	// to the service. Capture pipelines use this as a cheap gate before
	// converting blocks.
	Ready() bool

	// Events returns the ordered event stream for this session. The channel
	// is closed after an EventClosed value has been delivered.
	Events() <-chan Event

	// Stop sends the stop control message for the active transcription task,
	// if any, without tearing down the connection. Safe to call repeatedly;
	// only the first call for an active task sends anything.
	Stop(ctx context.Context) error

	// Close terminates the session and releases the connection. Safe to call
	// more than once.
	Close() error
}

// Recognizer is the abstraction over a streaming speech recognition backend.
type Recognizer interface {
	// StartStream opens a new streaming session with the given audio format.
	// The returned session is ready to accept audio once its transport
	// reports Ready. Returns an error if the session cannot be established
	// (credential rejection, connect timeout, context cancellation).
	StartStream(ctx context.Context, cfg StreamConfig) (StreamSession, error)
}
