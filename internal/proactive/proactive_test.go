package proactive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/store"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 7, 31, hh, mm, 0, 0, time.Local)
}

func TestQuietHoursWithinNonWrapping(t *testing.T) {
	q := QuietHours{Start: "09:00", End: "17:00"}
	if !q.Within(at(12, 0)) {
		t.Error("expected noon to be within a 09:00-17:00 window")
	}
	if q.Within(at(8, 59)) {
		t.Error("expected 08:59 to be outside a 09:00-17:00 window")
	}
	if q.Within(at(17, 0)) {
		t.Error("expected the end boundary to be exclusive")
	}
}

func TestQuietHoursWithinWrapAround(t *testing.T) {
	q := QuietHours{Start: "22:00", End: "08:00"}
	if !q.Within(at(23, 30)) {
		t.Error("expected 23:30 to be within a wrap-around 22:00-08:00 window")
	}
	if !q.Within(at(2, 0)) {
		t.Error("expected 02:00 to be within a wrap-around 22:00-08:00 window")
	}
	if q.Within(at(12, 0)) {
		t.Error("expected noon to be outside a wrap-around 22:00-08:00 window")
	}
	if q.Within(at(8, 0)) {
		t.Error("expected the wrap-around end boundary to be exclusive")
	}
}

func TestQuietHoursInvalidFormatNeverBlocks(t *testing.T) {
	q := QuietHours{Start: "garbage", End: "also garbage"}
	if q.Within(at(12, 0)) {
		t.Error("expected an unparsable window to never report Within")
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, string) {
	t.Helper()
	root := t.TempDir()
	incoming := filepath.Join(root, "incoming")
	processing := filepath.Join(root, "processing")
	outgoing := filepath.Join(root, "outgoing")
	for _, d := range []string{incoming, processing, outgoing} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	spooler := queue.New(incoming, processing, outgoing)
	deferredPath := filepath.Join(root, "deferred.jsonl")
	statePath := filepath.Join(root, "state.json")

	s := New(nil, spooler, deferredPath, statePath, QuietHours{Start: "22:00", End: "08:00"}, "09:00", nil, nil)
	return s, outgoing
}

func TestDeferThenFlushOutsideQuietHoursDelivers(t *testing.T) {
	s, outgoing := newTestScheduler(t)

	env := store.MessageEnvelope{Channel: "whatsapp", MessageID: "m1", Message: "hello"}
	if err := s.Defer(env, false); err != nil {
		t.Fatalf("Defer() error: %v", err)
	}

	if err := s.flushDeferred(at(12, 0)); err != nil {
		t.Fatalf("flushDeferred() error: %v", err)
	}

	entries, err := os.ReadDir(outgoing)
	if err != nil {
		t.Fatalf("ReadDir(outgoing) error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one outgoing file after flushing outside quiet hours, got %d", len(entries))
	}

	if data, err := os.ReadFile(s.deferredPath); err != nil || len(data) != 0 {
		t.Errorf("expected deferred outbox to be truncated after flush, got %q err=%v", data, err)
	}
}

func TestDeferThenFlushDuringQuietHoursHoldsNonUrgent(t *testing.T) {
	s, outgoing := newTestScheduler(t)

	env := store.MessageEnvelope{Channel: "whatsapp", MessageID: "m2", Message: "hello"}
	if err := s.Defer(env, false); err != nil {
		t.Fatalf("Defer() error: %v", err)
	}

	if err := s.flushDeferred(at(23, 0)); err != nil {
		t.Fatalf("flushDeferred() error: %v", err)
	}

	entries, err := os.ReadDir(outgoing)
	if err != nil {
		t.Fatalf("ReadDir(outgoing) error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no outgoing files during quiet hours, got %d", len(entries))
	}
}

func TestDeferUrgentBypassesQuietHours(t *testing.T) {
	s, outgoing := newTestScheduler(t)

	env := store.MessageEnvelope{Channel: "whatsapp", MessageID: "m3", Message: "urgent ack"}
	if err := s.Defer(env, true); err != nil {
		t.Fatalf("Defer() error: %v", err)
	}

	if err := s.flushDeferred(at(23, 0)); err != nil {
		t.Fatalf("flushDeferred() error: %v", err)
	}

	entries, err := os.ReadDir(outgoing)
	if err != nil {
		t.Fatalf("ReadDir(outgoing) error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected an urgent message to flush during quiet hours, got %d entries", len(entries))
	}
}

func TestDigestCron(t *testing.T) {
	expr, err := digestCron("09:30")
	if err != nil {
		t.Fatalf("digestCron() error: %v", err)
	}
	if expr != "30 9 * * *" {
		t.Errorf("digestCron(09:30) = %q, want %q", expr, "30 9 * * *")
	}
	if _, err := digestCron("not-a-time"); err == nil {
		t.Error("expected an error for an unparsable digest time")
	}
}
