package aliyun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/autonomi-lab/roadscribe/pkg/asr"
)

// readStep is one scripted inbound frame or failure.
type readStep struct {
	data []byte
	err  error
}

// scriptedConn replays a fixed sequence of inbound frames, records all writes,
// and blocks after the script until closed.
type scriptedConn struct {
	mu     sync.Mutex
	script []readStep
	idx    int
	writes []struct {
		typ  websocket.MessageType
		data []byte
	}

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedConn(script ...readStep) *scriptedConn {
	return &scriptedConn{script: script, closed: make(chan struct{})}
}

func (c *scriptedConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	c.mu.Lock()
	if c.idx < len(c.script) {
		step := c.script[c.idx]
		c.idx++
		c.mu.Unlock()
		if step.err != nil {
			return 0, nil, step.err
		}
		return websocket.MessageText, step.data, nil
	}
	c.mu.Unlock()

	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *scriptedConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, struct {
		typ  websocket.MessageType
		data []byte
	}{typ, data})
	return nil
}

func (c *scriptedConn) Close(code websocket.StatusCode, reason string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// controlWrites returns the header names of all text frames written so far.
func (c *scriptedConn) controlWrites(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, w := range c.writes {
		if w.typ != websocket.MessageText {
			continue
		}
		var msg controlMessage
		if err := json.Unmarshal(w.data, &msg); err != nil {
			t.Fatalf("unparseable control write: %v", err)
		}
		names = append(names, msg.Header.Name)
	}
	return names
}

func eventJSON(t *testing.T, name string, status int, result string, index int) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"header": map[string]any{
			"name":    name,
			"status":  status,
			"task_id": "task-1",
		},
		"payload": map[string]any{
			"result": result,
			"index":  index,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// sleepRecorder records requested delays without actually sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

// newTestRecognizer builds a Recognizer with a pre-cached token, the given
// dialer, and a no-op sleeper.
func newTestRecognizer(t *testing.T, dial DialFunc, sleeper *sleepRecorder) *Recognizer {
	t.Helper()
	r, err := New(testCreds, WithDialFunc(dial), WithSleepFunc(sleeper.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.tokens.cached = &Token{ID: "cached-token", ExpiresAt: time.Now().Add(time.Hour)}
	return r
}

func drainEvents(t *testing.T, sess asr.StreamSession) []asr.Event {
	t.Helper()
	var events []asr.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out draining events, got %d so far", len(events))
		}
	}
}

func kinds(events []asr.Event) []asr.EventKind {
	out := make([]asr.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestSession_Lifecycle(t *testing.T) {
	t.Parallel()

	conn := newScriptedConn(
		readStep{data: eventJSON(t, opTranscriptionStarted, statusSuccess, "", 0)},
		readStep{data: eventJSON(t, opResultChanged, statusSuccess, "安全", 1)},
		readStep{data: eventJSON(t, opSentenceEnd, statusSuccess, "安全接管", 1)},
		readStep{data: eventJSON(t, opTranscriptionCompleted, statusSuccess, "", 0)},
		readStep{err: websocket.CloseError{Code: websocket.StatusNormalClosure}},
	)
	sleeper := &sleepRecorder{}
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}, sleeper)

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	events := drainEvents(t, sess)
	want := []asr.EventKind{
		asr.EventSessionStarted,
		asr.EventPartial,
		asr.EventFinal,
		asr.EventCompleted,
		asr.EventClosed,
	}
	got := kinds(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	if events[1].Transcript.IsFinal {
		t.Error("partial transcript marked final")
	}
	if !events[2].Transcript.IsFinal || events[2].Transcript.Text != "安全接管" {
		t.Errorf("final transcript = %+v", events[2].Transcript)
	}
	if events[4].Err != nil {
		t.Errorf("normal closure carried error: %v", events[4].Err)
	}
	if len(sleeper.recorded()) != 0 {
		t.Errorf("normal closure slept: %v", sleeper.recorded())
	}

	if names := conn.controlWrites(t); len(names) != 1 || names[0] != opStartTranscription {
		t.Errorf("control writes = %v, want [StartTranscription]", names)
	}
}

func TestSession_SendAudio(t *testing.T) {
	t.Parallel()

	conn := newScriptedConn()
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}, &sleepRecorder{})

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if !sess.Ready() {
		t.Fatal("session not ready after StartStream")
	}
	if err := sess.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	conn.mu.Lock()
	var binaries int
	for _, w := range conn.writes {
		if w.typ == websocket.MessageBinary {
			binaries++
		}
	}
	conn.mu.Unlock()
	if binaries != 1 {
		t.Errorf("binary frames written = %d, want 1", binaries)
	}
}

func TestSession_StopSendsOnce(t *testing.T) {
	t.Parallel()

	conn := newScriptedConn()
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}, &sleepRecorder{})

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	// Close also routes through Stop; the task is already stopped.
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	drainEvents(t, sess)

	var stops int
	for _, name := range conn.controlWrites(t) {
		if name == opStopTranscription {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("StopTranscription frames = %d, want 1", stops)
	}
}

func TestSession_ReconnectExhaustion(t *testing.T) {
	t.Parallel()

	conn := newScriptedConn(
		readStep{err: websocket.CloseError{Code: websocket.StatusCode(4000), Reason: "gateway restart"}},
	)
	sleeper := &sleepRecorder{}
	var mu sync.Mutex
	dials := 0
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return conn, nil
		}
		return nil, errors.New("gateway unreachable")
	}, sleeper)

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	events := drainEvents(t, sess)
	got := kinds(events)
	want := []asr.EventKind{
		asr.EventReconnecting,
		asr.EventReconnecting,
		asr.EventReconnecting,
		asr.EventClosed,
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := 0; i < 3; i++ {
		if events[i].Attempt != i+1 {
			t.Errorf("attempt %d reported as %d", i+1, events[i].Attempt)
		}
	}

	final := events[3]
	if final.Err == nil || !asr.IsKind(final.Err, asr.KindConnection) {
		t.Errorf("terminal error = %v, want connection kind", final.Err)
	}

	// Linear backoff: attempt n waits n*2s.
	wantDelays := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	if fmt.Sprint(sleeper.recorded()) != fmt.Sprint(wantDelays) {
		t.Errorf("delays = %v, want %v", sleeper.recorded(), wantDelays)
	}

	mu.Lock()
	defer mu.Unlock()
	if dials != 4 {
		t.Errorf("dials = %d, want 1 initial + 3 retries", dials)
	}
}

func TestSession_AuthCloseIsTerminal(t *testing.T) {
	t.Parallel()

	conn := newScriptedConn(
		readStep{err: websocket.CloseError{Code: closeAuthFailure, Reason: "Gateway:ACCESS_DENIED"}},
	)
	sleeper := &sleepRecorder{}
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}, sleeper)

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	events := drainEvents(t, sess)
	if len(events) != 1 || events[0].Kind != asr.EventClosed {
		t.Fatalf("events = %v, want single EventClosed", kinds(events))
	}
	if !asr.IsKind(events[0].Err, asr.KindConfiguration) {
		t.Errorf("error = %v, want configuration kind", events[0].Err)
	}
	if len(sleeper.recorded()) != 0 {
		t.Errorf("auth failure slept before giving up: %v", sleeper.recorded())
	}
}

func TestSession_RateLimitDelaysReconnect(t *testing.T) {
	t.Parallel()

	conn1 := newScriptedConn(
		readStep{err: websocket.CloseError{Code: closeTooManyConnections, Reason: "too many connections"}},
	)
	conn2 := newScriptedConn(
		readStep{err: websocket.CloseError{Code: websocket.StatusNormalClosure}},
	)
	sleeper := &sleepRecorder{}
	var mu sync.Mutex
	dials := 0
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return conn1, nil
		}
		return conn2, nil
	}, sleeper)

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	events := drainEvents(t, sess)
	got := kinds(events)
	want := []asr.EventKind{asr.EventReconnecting, asr.EventClosed}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if events[1].Err != nil {
		t.Errorf("closed event carried error after clean reconnect: %v", events[1].Err)
	}

	// The fixed rate-limit wait precedes the first backoff sleep.
	delays := sleeper.recorded()
	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want [5s 2s]", delays)
	}

	// The reconnected connection got its own StartTranscription.
	if names := conn2.controlWrites(t); len(names) != 1 || names[0] != opStartTranscription {
		t.Errorf("reconnect control writes = %v, want [StartTranscription]", names)
	}
}

func TestSession_ServiceFaultInvalidatesToken(t *testing.T) {
	t.Parallel()

	conn := newScriptedConn(
		readStep{data: eventJSON(t, "", statusTokenExpired, "", 0)},
		readStep{err: websocket.CloseError{Code: websocket.StatusNormalClosure}},
	)
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}, &sleepRecorder{})

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	events := drainEvents(t, sess)
	if len(events) != 2 || events[0].Kind != asr.EventServiceFault {
		t.Fatalf("events = %v, want [SERVICE_FAULT CLOSED]", kinds(events))
	}
	if !asr.IsKind(events[0].Err, asr.KindService) {
		t.Errorf("fault error = %v, want service kind", events[0].Err)
	}

	r.tokens.mu.Lock()
	cached := r.tokens.cached
	r.tokens.mu.Unlock()
	if cached != nil {
		t.Error("token cache not invalidated after token-expired status")
	}
}

func TestRecognizer_DialURLCarriesCredentials(t *testing.T) {
	t.Parallel()

	var gotURL string
	conn := newScriptedConn()
	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		gotURL = url
		return conn, nil
	}, &sleepRecorder{})

	sess, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	want := gatewayEndpoint + "?appkey=test-app&token=cached-token"
	if gotURL != want {
		t.Errorf("dial url = %q, want %q", gotURL, want)
	}
}

func TestRecognizer_ConnectTimeout(t *testing.T) {
	t.Parallel()

	r := newTestRecognizer(t, func(ctx context.Context, url string) (wsConn, error) {
		// A dialer that never completes surfaces the connect deadline.
		return nil, context.DeadlineExceeded
	}, &sleepRecorder{})

	_, err := r.StartStream(context.Background(), asr.StreamConfig{})
	if err == nil {
		t.Fatal("StartStream succeeded with a timing-out dialer")
	}
	if !asr.IsKind(err, asr.KindConnection) {
		t.Errorf("error kind is not connection: %v", err)
	}
	if !strings.Contains(err.Error(), "connect timed out") {
		t.Errorf("error = %v, want connect-timeout message", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error does not wrap the deadline cause: %v", err)
	}
}
