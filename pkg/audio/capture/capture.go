// Package capture acquires microphone audio and feeds it to a recognition
// session as wire-format PCM.
//
// The two abstractions are:
//
//   - [Source] — exclusive access to a microphone stream, delivering blocks
//     of float32 samples at 16 kHz mono.
//   - [Pipeline] — converts blocks to 16-bit PCM and forwards them to an
//     [AudioSink] while recording is active and the sink is ready. Blocks
//     produced at any other time are discarded; the pipeline favours
//     real-time freshness over completeness.
package capture

import "context"

// BlockSamples is the capture granularity in samples per block. 2048 samples
// at 16 kHz is 128 ms, inside the 1024–4096 range the recognizer handles
// well. Not configurable by callers.
const BlockSamples = 2048

// Block is one captured chunk of float32 samples in [-1, 1].
type Block struct {
	Samples []float32
}

// Source provides exclusive access to a microphone stream.
//
// Start acquires the device and returns a channel of blocks. The channel is
// closed when the stream becomes inactive (device unplugged, process died);
// the pipeline reacquires by calling Start again.
type Source interface {
	Start(ctx context.Context) (<-chan Block, error)
	Close() error
}

// AudioSink accepts wire-format PCM. Implemented by asr.StreamSession.
type AudioSink interface {
	SendAudio(chunk []byte) error
	Ready() bool
}
