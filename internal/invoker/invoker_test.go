package invoker

import (
	"errors"
	"testing"
)

func TestClassifySubprocessErrorModelUnavailable(t *testing.T) {
	cases := []string{
		"Error: model claude-opus-99 does not exist",
		"you do not have access to this model",
		"invalid model specified",
	}
	for _, stderr := range cases {
		if err := classifySubprocessError(stderr, errors.New("exit 1")); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("classifySubprocessError(%q) = %v, want ErrModelUnavailable", stderr, err)
		}
	}
}

func TestClassifySubprocessErrorNoPriorSession(t *testing.T) {
	cases := []string{
		"No prior session found to resume",
		"no conversation to resume from",
	}
	for _, stderr := range cases {
		if err := classifySubprocessError(stderr, errors.New("exit 1")); !errors.Is(err, ErrNoPriorSession) {
			t.Errorf("classifySubprocessError(%q) = %v, want ErrNoPriorSession", stderr, err)
		}
	}
}

func TestClassifySubprocessErrorGeneric(t *testing.T) {
	err := classifySubprocessError("disk is full", errors.New("exit 2"))
	if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrNoPriorSession) {
		t.Errorf("classifySubprocessError(generic) = %v, want a plain wrapped error", err)
	}
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestResolveBinaryMissing(t *testing.T) {
	if _, err := resolveBinary("definitely-not-a-real-binary-xyz-123"); !errors.Is(err, ErrBinaryMissing) {
		t.Errorf("resolveBinary(missing) = %v, want ErrBinaryMissing", err)
	}
}

func TestFrameKindPrefersMsgType(t *testing.T) {
	f := frame{MsgType: "agent_message", Type: "legacy_type"}
	if f.kind() != "agent_message" {
		t.Errorf("kind() = %q, want agent_message", f.kind())
	}
	f2 := frame{Type: "legacy_type"}
	if f2.kind() != "legacy_type" {
		t.Errorf("kind() = %q, want legacy_type", f2.kind())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q, want unchanged", got)
	}
	long := make([]byte, 20)
	for i := range long {
		long[i] = 'a'
	}
	got := truncate(string(long), 5)
	want := "aaaaa...(truncated)"
	if got != want {
		t.Errorf("truncate(long) = %q, want %q", got, want)
	}
}
