package asr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsKind(t *testing.T) {
	t.Parallel()

	err := Errorf(KindConnection, "dial failed")
	if !IsKind(err, KindConnection) {
		t.Error("IsKind missed the matching kind")
	}
	if IsKind(err, KindAuth) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(nil, KindConnection) {
		t.Error("IsKind matched nil")
	}
	if IsKind(errors.New("plain"), KindConnection) {
		t.Error("IsKind matched a plain error")
	}
}

func TestIsKind_Wrapped(t *testing.T) {
	t.Parallel()

	inner := Errorf(KindConfiguration, "missing app key")
	outer := fmt.Errorf("start stream: %w", inner)
	if !IsKind(outer, KindConfiguration) {
		t.Error("IsKind did not unwrap")
	}
}

func TestWrapError_PreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := WrapError(KindConnection, cause, "dial gateway")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost")
	}
	msg := err.Error()
	for _, want := range []string{"connection", "dial gateway", "connection refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestErrorKind_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindConfiguration, "configuration"},
		{KindAuth, "auth"},
		{KindConnection, "connection"},
		{KindProtocol, "protocol"},
		{KindService, "service"},
		{KindCapture, "capture"},
		{ErrorKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
