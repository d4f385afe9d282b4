package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autonomi-lab/roadscribe/pkg/audio"
)

// reacquireDelay is the pause before reopening a source whose stream went
// inactive mid-session.
const reacquireDelay = 500 * time.Millisecond

// wireSampleRate is the only rate the recognition gateway accepts.
const wireSampleRate = 16000

// Pipeline pulls blocks from a Source, quantizes them to PCM16, and forwards
// them to an AudioSink. Forwarding happens only while recording is active AND
// the sink reports ready; every other block is silently dropped and counted.
//
// If the source's stream closes while the pipeline is running, the pipeline
// transparently reacquires the source and resumes. All exported methods are
// safe for concurrent use.
type Pipeline struct {
	source  Source
	sink    AudioSink
	srcRate int

	recording atomic.Bool
	dropped   atomic.Int64
	forwarded atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// PipelineOption adjusts pipeline behaviour at construction time.
type PipelineOption func(*Pipeline)

// WithSourceRate declares the sample rate the source delivers, in Hz. Blocks
// are resampled to the 16 kHz wire rate before forwarding when the rates
// differ. Non-positive rates are ignored.
func WithSourceRate(hz int) PipelineOption {
	return func(p *Pipeline) {
		if hz > 0 {
			p.srcRate = hz
		}
	}
}

// NewPipeline wires a source to a sink. The pipeline is created stopped.
func NewPipeline(source Source, sink AudioSink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{source: source, sink: sink, srcRate: wireSampleRate}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start acquires the source and begins forwarding. Returns an error if the
// microphone cannot be acquired; the pipeline must not silently run without
// audio.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	blocks, err := p.source.Start(runCtx)
	if err != nil {
		cancel()
		return err
	}

	p.cancel = cancel
	p.running = true
	p.recording.Store(true)

	p.wg.Add(1)
	go p.loop(runCtx, blocks)
	return nil
}

// loop forwards blocks until the context is cancelled, reacquiring the
// source whenever its stream goes inactive.
func (p *Pipeline) loop(ctx context.Context, blocks <-chan Block) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				reacquired, newBlocks := p.reacquire(ctx)
				if !reacquired {
					return
				}
				blocks = newBlocks
				continue
			}
			p.forward(block)
		}
	}
}

// reacquire reopens the source after its stream went inactive.
func (p *Pipeline) reacquire(ctx context.Context) (bool, <-chan Block) {
	slog.Warn("capture: stream inactive, reacquiring source")
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(reacquireDelay):
		}
		blocks, err := p.source.Start(ctx)
		if err == nil {
			slog.Info("capture: source reacquired")
			return true, blocks
		}
		slog.Warn("capture: reacquire failed, retrying", "err", err)
	}
}

// forward converts and sends one block, or drops it when the gate is shut.
func (p *Pipeline) forward(block Block) {
	if !p.recording.Load() || !p.sink.Ready() {
		p.dropped.Add(1)
		return
	}
	pcm := audio.Float32ToPCM16(block.Samples)
	if p.srcRate != wireSampleRate {
		pcm = audio.ResampleMono16(pcm, p.srcRate, wireSampleRate)
	}
	if err := p.sink.SendAudio(pcm); err != nil {
		p.dropped.Add(1)
		return
	}
	p.forwarded.Add(1)
}

// SetRecording flips the recording-active gate without releasing the device.
func (p *Pipeline) SetRecording(active bool) {
	p.recording.Store(active)
}

// Stop halts forwarding and releases the capture source. Safe to call more
// than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	p.recording.Store(false)
	cancel()
	p.wg.Wait()
	_ = p.source.Close()

	slog.Info("capture: pipeline stopped",
		"forwarded_blocks", p.forwarded.Load(),
		"dropped_blocks", p.dropped.Load(),
	)
}

// DroppedBlocks reports how many blocks were discarded while the gate was
// shut or the send failed.
func (p *Pipeline) DroppedBlocks() int64 { return p.dropped.Load() }
