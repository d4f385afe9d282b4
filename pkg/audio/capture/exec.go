package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/autonomi-lab/roadscribe/pkg/asr"
)

// ExecSource captures microphone audio by spawning an external capture
// command that writes raw 32-bit little-endian float samples to stdout,
// e.g.:
//
//	arecord -q -f FLOAT_LE -r 16000 -c 1 -t raw
//
// The command must request echo cancellation on and automatic gain control
// off at the device level where the platform supports it.
type ExecSource struct {
	cmd []string

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewExecSource parses command into an argv and returns a source. The
// command is not spawned until Start.
func NewExecSource(command string) (*ExecSource, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, asr.WrapError(asr.KindCapture, err, "parse capture command")
	}
	if len(args) == 0 {
		return nil, asr.Errorf(asr.KindCapture, "capture command is empty")
	}
	return &ExecSource{cmd: args}, nil
}

// Start spawns the capture process and returns a channel of sample blocks.
// The channel is closed when the process exits or its stdout hits EOF.
func (s *ExecSource) Start(ctx context.Context) (<-chan Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, asr.Errorf(asr.KindCapture, "capture source already started")
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, s.cmd[0], s.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, asr.WrapError(asr.KindCapture, err, "open capture stdout")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, asr.WrapError(asr.KindCapture, err, fmt.Sprintf("start capture command %q", s.cmd[0]))
	}

	s.cancel = cancel
	s.running = true

	blocks := make(chan Block, 8)
	go s.readLoop(cmd, stdout, blocks)

	slog.Info("capture: source started", "command", s.cmd[0])
	return blocks, nil
}

// readLoop chunks stdout into fixed-size sample blocks. It owns cmd from
// here on: the process is reaped before the channel closes, so a caller that
// observed the close can restart immediately without racing the cleanup.
func (s *ExecSource) readLoop(cmd *exec.Cmd, stdout io.Reader, blocks chan<- Block) {
	defer close(blocks)
	defer func() {
		_ = cmd.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	buf := make([]byte, BlockSamples*4)
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Warn("capture: read error", "err", err)
			}
			return
		}
		samples := make([]float32, BlockSamples)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(buf[i*4:])
			samples[i] = math.Float32frombits(bits)
		}
		blocks <- Block{Samples: samples}
	}
}

// Close terminates the capture process. Safe to call when not running.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}
