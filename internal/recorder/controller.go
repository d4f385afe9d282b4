// Package recorder orchestrates the start/pause/stop lifecycle of a testing
// session, wiring the transport, the capture pipeline, and the record store
// together behind narrow interfaces.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/autonomi-lab/roadscribe/internal/store"
)

// State is the controller lifecycle state. Starting and Pausing are
// transient; both pause and stop route through Pausing before settling in
// Stopped.
type State int

const (
	Stopped State = iota
	Starting
	Recording
	Pausing
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	case Pausing:
		return "pausing"
	default:
		return "unknown"
	}
}

// Transport is the slice of the streaming session the controller needs.
type Transport interface {
	// Connect ensures a live streaming session exists, establishing one if
	// necessary.
	Connect(ctx context.Context) error

	// StopTask sends the stop control message for the active transcription
	// task, if any.
	StopTask(ctx context.Context) error
}

// AudioPipeline is the slice of the capture pipeline the controller needs.
type AudioPipeline interface {
	Start(ctx context.Context) error
	SetRecording(active bool)
	Stop()
}

// SessionStore is the slice of the record store the controller needs.
type SessionStore interface {
	OpenSession() (store.TestSession, error)
	CloseSession() (store.TestSession, bool)
}

// Ticker receives the 1 Hz elapsed-time callback while recording. The UI
// layer implements this.
type Ticker interface {
	Elapsed(d time.Duration)
}

// Controller drives one testing session at a time. All exported methods are
// safe for concurrent use.
type Controller struct {
	transport Transport
	pipeline  AudioPipeline
	sessions  SessionStore
	ticker    Ticker

	mu        sync.Mutex
	state     State
	startedAt time.Time
	stopTick  context.CancelFunc
}

// New creates a Controller in the Stopped state.
func New(transport Transport, pipeline AudioPipeline, sessions SessionStore, ticker Ticker) *Controller {
	return &Controller{
		transport: transport,
		pipeline:  pipeline,
		sessions:  sessions,
		ticker:    ticker,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartTest begins a new testing session: open a session, connect the
// transport, start audio capture, start the elapsed ticker. A no-op unless
// the controller is exactly Stopped.
func (c *Controller) StartTest(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Stopped {
		state := c.state
		c.mu.Unlock()
		slog.Debug("recorder: start ignored", "state", state)
		return nil
	}
	c.state = Starting
	c.mu.Unlock()

	sess, err := c.sessions.OpenSession()
	if err != nil {
		c.setState(Stopped)
		return fmt.Errorf("recorder: open session: %w", err)
	}

	if err := c.transport.Connect(ctx); err != nil {
		c.sessions.CloseSession()
		c.setState(Stopped)
		return fmt.Errorf("recorder: connect transport: %w", err)
	}

	if err := c.pipeline.Start(ctx); err != nil {
		_ = c.transport.StopTask(ctx)
		c.sessions.CloseSession()
		c.setState(Stopped)
		return fmt.Errorf("recorder: start capture: %w", err)
	}

	tickCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.state = Recording
	c.startedAt = time.Now()
	c.stopTick = cancel
	c.mu.Unlock()

	go c.tickLoop(tickCtx)

	slog.Info("recorder: test started", "session_id", sess.ID, "session_name", sess.Name)
	return nil
}

// PauseTest suspends capture without sealing the session. Audio stops
// flowing and the transcription task is stopped; a later StartTest is NOT
// resumed — pause settles the controller in Stopped.
func (c *Controller) PauseTest(ctx context.Context) error {
	if !c.beginTeardown() {
		return nil
	}
	c.haltCapture(ctx)
	c.setState(Stopped)
	slog.Info("recorder: test paused")
	return nil
}

// StopTest ends the testing session, sealing the current session's end time
// and record count. Safe to call repeatedly; only the first call after a
// start does any work.
func (c *Controller) StopTest(ctx context.Context) error {
	if c.beginTeardown() {
		c.haltCapture(ctx)
	}

	// Seal even when the controller was already Stopped via pause.
	if sealed, ok := c.sessions.CloseSession(); ok {
		slog.Info("recorder: test stopped", "session_id", sealed.ID, "records", sealed.RecordCount)
	}
	c.setState(Stopped)
	return nil
}

// beginTeardown moves Recording into the transient Pausing state. Returns
// false when there is nothing to tear down, which makes pause and stop
// idempotent.
func (c *Controller) beginTeardown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return false
	}
	c.state = Pausing
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	return true
}

// haltCapture stops the audio flow and the transcription task.
func (c *Controller) haltCapture(ctx context.Context) {
	c.pipeline.SetRecording(false)
	c.pipeline.Stop()
	if err := c.transport.StopTask(ctx); err != nil {
		slog.Warn("recorder: stop task", "err", err)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// tickLoop delivers the 1 Hz elapsed-time callback while recording.
func (c *Controller) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			started := c.startedAt
			c.mu.Unlock()
			c.ticker.Elapsed(time.Since(started).Truncate(time.Second))
		}
	}
}
