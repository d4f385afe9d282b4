package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/autonomi-lab/roadscribe/pkg/asr"
)

// Transcriber owns the single process-wide streaming session and pumps its
// events into a handler. It implements recorder.Transport for the controller
// and capture.AudioSink for the pipeline.
//
// Events are consumed on one goroutine per session, so the handler sees them
// in delivery order and finishes processing one before the next is taken.
type Transcriber struct {
	rec     asr.Recognizer
	cfg     asr.StreamConfig
	handler func(asr.Event)

	mu      sync.Mutex
	session asr.StreamSession
}

// NewTranscriber creates a Transcriber. handler is invoked for every event
// of every session the transcriber opens.
func NewTranscriber(rec asr.Recognizer, cfg asr.StreamConfig, handler func(asr.Event)) *Transcriber {
	return &Transcriber{rec: rec, cfg: cfg, handler: handler}
}

// Connect ensures a live streaming session, opening one if the previous
// session ended or none exists yet.
func (t *Transcriber) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return nil
	}

	sess, err := t.rec.StartStream(ctx, t.cfg)
	if err != nil {
		return err
	}
	t.session = sess

	go t.consume(sess)
	return nil
}

// consume drains one session's event stream. When the stream ends the
// session slot is cleared so the next Connect opens a fresh one.
func (t *Transcriber) consume(sess asr.StreamSession) {
	for ev := range sess.Events() {
		t.handler(ev)
	}

	t.mu.Lock()
	if t.session == sess {
		t.session = nil
	}
	t.mu.Unlock()
	slog.Debug("app: transcriber session ended")
}

// SendAudio forwards a PCM chunk to the current session, dropping it when no
// session is live.
func (t *Transcriber) SendAudio(chunk []byte) error {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.SendAudio(chunk)
}

// Ready reports whether audio can currently reach the service.
func (t *Transcriber) Ready() bool {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	return sess != nil && sess.Ready()
}

// StopTask stops the active transcription task without closing the
// connection.
func (t *Transcriber) StopTask(ctx context.Context) error {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Stop(ctx)
}

// Close tears down the current session, if any.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	sess := t.session
	t.session = nil
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}
