package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinyagi/tinyagi/internal/store"
)

func newTestSpooler(t *testing.T) *Spooler {
	t.Helper()
	root := t.TempDir()
	incoming := filepath.Join(root, "incoming")
	processing := filepath.Join(root, "processing")
	outgoing := filepath.Join(root, "outgoing")
	for _, dir := range []string{incoming, processing, outgoing} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return New(incoming, processing, outgoing)
}

func writeIncoming(t *testing.T, s *Spooler, name string, env *store.MessageEnvelope) {
	t.Helper()
	if err := s.writeJSON(s.incoming, name, env); err != nil {
		t.Fatalf("writeIncoming(%s): %v", name, err)
	}
}

func TestClaimProcessCompleteLifecycle(t *testing.T) {
	s := newTestSpooler(t)
	env := &store.MessageEnvelope{Channel: "telegram", MessageID: "m1", Message: "hello"}
	writeIncoming(t, s, "in1.json", env)

	names, err := s.ListIncoming()
	if err != nil {
		t.Fatalf("ListIncoming() error: %v", err)
	}
	if len(names) != 1 || names[0] != "in1.json" {
		t.Fatalf("ListIncoming() = %v, want [in1.json]", names)
	}

	if _, err := s.Claim("in1.json"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.incoming, "in1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected in1.json to be gone from incoming after Claim")
	}
	if _, err := os.Stat(filepath.Join(s.processing, "in1.json")); err != nil {
		t.Fatalf("expected in1.json in processing after Claim: %v", err)
	}

	got, err := s.ReadEnvelope("in1.json")
	if err != nil {
		t.Fatalf("ReadEnvelope() error: %v", err)
	}
	if got.Message != "hello" {
		t.Errorf("ReadEnvelope() message = %q, want %q", got.Message, "hello")
	}

	if err := s.Complete("in1.json"); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.processing, "in1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected in1.json to be gone from processing after Complete")
	}
}

func TestReleasePutsFileBackInIncoming(t *testing.T) {
	s := newTestSpooler(t)
	writeIncoming(t, s, "in1.json", &store.MessageEnvelope{MessageID: "m1"})

	if _, err := s.Claim("in1.json"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if err := s.Release("in1.json"); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.incoming, "in1.json")); err != nil {
		t.Fatalf("expected in1.json back in incoming after Release: %v", err)
	}
}

func TestRecoverSweepsProcessingBackToIncoming(t *testing.T) {
	s := newTestSpooler(t)
	if err := s.writeJSON(s.processing, "stuck.json", &store.MessageEnvelope{MessageID: "stuck"}); err != nil {
		t.Fatalf("seed processing file: %v", err)
	}

	if err := s.Recover(); err != nil {
		t.Fatalf("Recover() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.incoming, "stuck.json")); err != nil {
		t.Fatalf("expected stuck.json recovered into incoming: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.processing, "stuck.json")); !os.IsNotExist(err) {
		t.Fatalf("expected stuck.json gone from processing after Recover")
	}
}

func TestListIncomingSortedByMtime(t *testing.T) {
	s := newTestSpooler(t)
	writeIncoming(t, s, "b.json", &store.MessageEnvelope{MessageID: "b"})
	writeIncoming(t, s, "a.json", &store.MessageEnvelope{MessageID: "a"})

	// Force distinct mtimes regardless of filesystem timestamp resolution:
	// b.json is made to look an hour older than a.json.
	now := time.Now()
	if err := os.Chtimes(filepath.Join(s.incoming, "b.json"), now.Add(-time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.Chtimes(filepath.Join(s.incoming, "a.json"), now, now); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	names, err := s.ListIncoming()
	if err != nil {
		t.Fatalf("ListIncoming() error: %v", err)
	}
	if len(names) != 2 || names[0] != "b.json" || names[1] != "a.json" {
		t.Errorf("ListIncoming() = %v, want [b.json a.json] (oldest first)", names)
	}
}

func TestWriteOutgoingHeartbeatNaming(t *testing.T) {
	s := newTestSpooler(t)
	env := &store.MessageEnvelope{Channel: "heartbeat", MessageID: "hb1"}
	if err := s.WriteOutgoing(env); err != nil {
		t.Fatalf("WriteOutgoing() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.outgoing, "hb1.json")); err != nil {
		t.Errorf("expected heartbeat file named by message id alone: %v", err)
	}
}

func TestWriteInternalGoesToIncoming(t *testing.T) {
	s := newTestSpooler(t)
	env := &store.MessageEnvelope{Message: "handoff"}
	if err := s.WriteInternal("conv1", "grace", env); err != nil {
		t.Fatalf("WriteInternal() error: %v", err)
	}
	names, err := s.ListIncoming()
	if err != nil {
		t.Fatalf("ListIncoming() error: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("ListIncoming() = %v, want exactly one internal file", names)
	}
}
