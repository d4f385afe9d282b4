// Package aliyun implements the asr interfaces against the Alibaba NLS
// real-time speech transcriber gateway: CreateToken HMAC-SHA1 signing, the
// SpeechTranscriber envelope protocol, and a WebSocket transport session
// with a bounded reconnect policy.
package aliyun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/autonomi-lab/roadscribe/pkg/asr"
)

const (
	gatewayEndpoint = "wss://nls-gateway-cn-shanghai.aliyuncs.com/ws/v1"

	// connectTimeout bounds one connection attempt, handshake included.
	connectTimeout = 10 * time.Second

	// maxReconnectAttempts caps automatic reconnection after an abnormal
	// close. Attempt n waits n*reconnectStep before dialing.
	maxReconnectAttempts = 3
	reconnectStep        = 2 * time.Second

	// rateLimitDelay is the fixed wait before reconnecting after the
	// gateway signals a connection-count limit.
	rateLimitDelay = 5 * time.Second

	eventBuffer = 64
)

// Gateway close codes with dedicated handling.
const (
	// closeAuthFailure is sent when the token or appkey is rejected at the
	// connection level. Never retried; the credentials need correction.
	closeAuthFailure websocket.StatusCode = 4403

	// closeTooManyConnections signals the per-account connection limit.
	closeTooManyConnections websocket.StatusCode = 4429
)

// wsConn is the subset of *websocket.Conn the session uses. Narrowed to an
// interface so tests can drive the close/reconnect paths with a fake.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens one WebSocket connection to the given URL.
type DialFunc func(ctx context.Context, url string) (wsConn, error)

func defaultDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithEndpoint overrides the gateway endpoint. Used for tests and private
// deployments.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// WithDialFunc replaces the WebSocket dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(r *Recognizer) { r.dial = dial }
}

// WithSleepFunc replaces the backoff sleeper. The function must honour ctx
// cancellation.
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Recognizer) { r.sleep = sleep }
}

// Recognizer implements asr.Recognizer against the NLS gateway.
type Recognizer struct {
	tokens   *TokenProvider
	appKey   string
	endpoint string
	dial     DialFunc
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Recognizer for the given credentials.
func New(creds Credentials, opts ...Option) (*Recognizer, error) {
	tokens, err := NewTokenProvider(creds)
	if err != nil {
		return nil, err
	}
	r := &Recognizer{
		tokens:   tokens,
		appKey:   creds.AppKey,
		endpoint: gatewayEndpoint,
		dial:     defaultDial,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartStream opens a streaming session: fetch (or reuse) a token, dial the
// gateway, and send StartTranscription for a fresh task. The returned session
// is already transcribing.
func (r *Recognizer) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.StreamSession, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}

	s := &session{
		rec:    r,
		cfg:    cfg,
		events: make(chan asr.Event, eventBuffer),
		done:   make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	go s.run()
	return s, nil
}

// session is one live transport session. It owns a single connection at a
// time; reconnection replaces the connection but keeps the session (and its
// event channel) alive.
type session struct {
	rec    *Recognizer
	cfg    asr.StreamConfig
	events chan asr.Event

	ready atomic.Bool

	mu      sync.Mutex
	conn    wsConn
	taskID  string
	started bool // transcription task active on current connection
	closed  bool

	done chan struct{}
}

// connect dials the gateway and starts a new transcription task. Each
// connection gets a fresh task id; the previous one is dead with the old
// connection.
func (s *session) connect(ctx context.Context) error {
	tok, err := s.rec.tokens.Get(ctx)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?appkey=%s&token=%s", s.rec.endpoint, s.rec.appKey, tok.ID)
	conn, err := s.rec.dial(dialCtx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return asr.WrapError(asr.KindConnection, err, "connect timed out")
		}
		return asr.WrapError(asr.KindConnection, err, "dial gateway")
	}

	taskID := generateID()
	start, err := marshalStart(taskID, s.rec.appKey, s.cfg.SampleRate)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "start marshal failed")
		return asr.WrapError(asr.KindProtocol, err, "marshal StartTranscription")
	}
	if err := conn.Write(ctx, websocket.MessageText, start); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "start send failed")
		return asr.WrapError(asr.KindConnection, err, "send StartTranscription")
	}

	s.mu.Lock()
	s.conn = conn
	s.taskID = taskID
	s.started = true
	s.mu.Unlock()
	s.ready.Store(true)

	slog.Info("transport: transcription started", "task_id", taskID)
	return nil
}

// SendAudio forwards one PCM chunk. Chunks arriving while the connection is
// not open are dropped: late audio is worse than lost audio for a live
// transcriber.
func (s *session) SendAudio(chunk []byte) error {
	if !s.ready.Load() {
		return nil
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Write(context.Background(), websocket.MessageBinary, chunk); err != nil {
		// The read loop observes the same failure and drives reconnection.
		return asr.WrapError(asr.KindConnection, err, "send audio frame")
	}
	return nil
}

// Ready reports whether audio can currently reach the service.
func (s *session) Ready() bool { return s.ready.Load() }

// Events returns the ordered event stream.
func (s *session) Events() <-chan asr.Event { return s.events }

// Stop sends StopTranscription for the active task, if any. Check-and-set on
// the started flag makes repeated calls send at most once per task.
func (s *session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	conn := s.conn
	taskID := s.taskID
	s.mu.Unlock()

	stop, err := marshalStop(taskID, s.rec.appKey)
	if err != nil {
		return asr.WrapError(asr.KindProtocol, err, "marshal StopTranscription")
	}
	if err := conn.Write(ctx, websocket.MessageText, stop); err != nil {
		return asr.WrapError(asr.KindConnection, err, "send StopTranscription")
	}
	slog.Info("transport: transcription stopped", "task_id", taskID)
	return nil
}

// Close stops the active task and tears down the connection. Safe to call
// more than once.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.ready.Store(false)
	_ = s.Stop(context.Background())
	close(s.done)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	return nil
}

// run is the single consumer of inbound messages. It reads until the
// connection fails, classifies the failure, and either reconnects or emits a
// terminal EventClosed. All events flow from this one goroutine, which gives
// downstream consumers the in-order processing guarantee.
func (s *session) run() {
	defer close(s.events)

	for {
		err := s.readLoop()

		s.ready.Store(false)
		s.mu.Lock()
		s.started = false
		closed := s.closed
		s.mu.Unlock()

		if closed {
			s.emit(asr.Event{Kind: asr.EventClosed})
			return
		}

		terminalErr, reconnected := s.handleClose(err)
		if reconnected {
			continue
		}
		s.emit(asr.Event{Kind: asr.EventClosed, Err: terminalErr})
		return
	}
}

// readLoop consumes inbound messages on the current connection until it
// fails, dispatching transcript and fault events.
func (s *session) readLoop() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return asr.Errorf(asr.KindConnection, "no connection")
	}

	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := parseEvent(data)
		if err != nil {
			slog.Warn("transport: dropping malformed message", "err", err)
			continue
		}
		s.dispatch(msg)
	}
}

// dispatch converts one inbound envelope into an event.
func (s *session) dispatch(msg eventMessage) {
	h := msg.Header
	if h.Status != 0 && h.Status != statusSuccess {
		if isTokenStatus(h.Status) {
			// Force a fresh token on the next connect.
			s.rec.tokens.Invalidate()
		}
		s.emit(asr.Event{Kind: asr.EventServiceFault, Err: statusError(h.Status, h.StatusText)})
		return
	}

	switch h.Name {
	case opTranscriptionStarted:
		s.emit(asr.Event{Kind: asr.EventSessionStarted})
	case opResultChanged:
		s.emit(asr.Event{Kind: asr.EventPartial, Transcript: transcriptFrom(msg, false)})
	case opSentenceEnd:
		s.emit(asr.Event{Kind: asr.EventFinal, Transcript: transcriptFrom(msg, true)})
	case opTranscriptionCompleted:
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.emit(asr.Event{Kind: asr.EventCompleted})
	default:
		slog.Debug("transport: ignoring unknown operation", "name", h.Name)
	}
}

func transcriptFrom(msg eventMessage, final bool) asr.Transcript {
	return asr.Transcript{
		Text:      msg.Payload.Result,
		IsFinal:   final,
		Index:     msg.Payload.Index,
		BeginTime: time.Duration(msg.Payload.BeginTime) * time.Millisecond,
		EndTime:   time.Duration(msg.Payload.Time) * time.Millisecond,
	}
}

// handleClose classifies a connection failure and runs the reconnect policy.
// Returns (terminalErr, false) when the session must end, or (nil, true)
// after a successful reconnect.
func (s *session) handleClose(err error) (error, bool) {
	code := websocket.CloseStatus(err)
	reason := closeReason(err)

	switch {
	case code == closeAuthFailure:
		// Credential rejection at the connection level: retrying cannot help.
		return asr.Errorf(asr.KindConfiguration, "gateway rejected credentials: %s", reason), false

	case code == websocket.StatusNormalClosure:
		return nil, false

	case code == closeTooManyConnections || containsRateLimitHint(reason):
		slog.Warn("transport: connection limit reached, waiting before reconnect",
			"delay", rateLimitDelay, "reason", reason)
		if serr := s.rec.sleep(context.Background(), rateLimitDelay); serr != nil {
			return asr.WrapError(asr.KindConnection, serr, "reconnect wait interrupted"), false
		}
	default:
		slog.Warn("transport: connection lost", "code", int(code), "reason", reason, "err", err)
	}

	return s.reconnect()
}

// reconnect attempts up to maxReconnectAttempts reconnections with linear
// backoff (attempt number times reconnectStep). Exhausting the budget yields
// a terminal connection error; no further automatic retries happen.
func (s *session) reconnect() (error, bool) {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * reconnectStep
		slog.Info("transport: reconnecting", "attempt", attempt, "delay", delay)
		s.emit(asr.Event{Kind: asr.EventReconnecting, Attempt: attempt})
		if err := s.rec.sleep(context.Background(), delay); err != nil {
			return asr.WrapError(asr.KindConnection, err, "reconnect wait interrupted"), false
		}

		select {
		case <-s.done:
			return nil, false
		default:
		}

		err := s.connect(context.Background())
		if err == nil {
			slog.Info("transport: reconnected", "attempt", attempt)
			return nil, true
		}
		if asr.IsKind(err, asr.KindConfiguration) {
			return err, false
		}
		slog.Warn("transport: reconnect attempt failed", "attempt", attempt, "err", err)
	}
	return asr.Errorf(asr.KindConnection, "reconnect failed after %d attempts", maxReconnectAttempts), false
}

func (s *session) emit(ev asr.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// closeReason extracts the close frame reason, if any.
func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// containsRateLimitHint matches close reasons that indicate the gateway's
// concurrent-connection limit when no dedicated code was sent.
func containsRateLimitHint(reason string) bool {
	lower := strings.ToLower(reason)
	for _, hint := range []string{"too many", "concurrent", "rate limit"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
