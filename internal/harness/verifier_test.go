package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/tinyagi/tinyagi/internal/store"
)

func TestFastPathEmptyOrTiny(t *testing.T) {
	v, fired := FastPath("  hi ")
	if !fired {
		t.Fatal("expected fast path to fire for a too-short candidate")
	}
	if v.Outcome != store.OutcomeCriticalFail {
		t.Errorf("Outcome = %s, want critical_fail", v.Outcome)
	}
}

func TestFastPathPlaceholder(t *testing.T) {
	v, fired := FastPath("TODO: implement this feature properly later")
	if !fired {
		t.Fatal("expected fast path to fire for placeholder text")
	}
	if v.Outcome != store.OutcomeCriticalFail {
		t.Errorf("Outcome = %s, want critical_fail", v.Outcome)
	}
}

func TestFastPathDoesNotFireOnRealContent(t *testing.T) {
	_, fired := FastPath("Here is a detailed, real answer to your question about deployment steps.")
	if fired {
		t.Fatal("fast path should not fire on substantive content")
	}
}

func TestVerifyFailOpenOnLLMError(t *testing.T) {
	llm := func(ctx context.Context, objective, candidate string) (Verdict, error) {
		return Verdict{}, errors.New("verifier subprocess crashed")
	}
	v := Verify(context.Background(), "obj", "a perfectly reasonable candidate answer", llm, false)
	if v.Outcome != store.OutcomePass {
		t.Errorf("Outcome = %s, want pass (fail-open)", v.Outcome)
	}
}

func TestVerifyFailClosedOnLLMError(t *testing.T) {
	llm := func(ctx context.Context, objective, candidate string) (Verdict, error) {
		return Verdict{}, errors.New("verifier subprocess crashed")
	}
	v := Verify(context.Background(), "obj", "a perfectly reasonable candidate answer", llm, true)
	if v.Outcome != store.OutcomeCriticalFail {
		t.Errorf("Outcome = %s, want critical_fail with failClosed=true", v.Outcome)
	}
}

func TestVerifyUnparsableDefaultsToPassRegardlessOfFailClosed(t *testing.T) {
	llm := func(ctx context.Context, objective, candidate string) (Verdict, error) {
		return Verdict{}, nil // unparsable: empty Outcome, no error
	}
	v := Verify(context.Background(), "obj", "a perfectly reasonable candidate answer", llm, true)
	if v.Outcome != store.OutcomePass {
		t.Errorf("Outcome = %s, want pass for unparsable verdict even with failClosed=true", v.Outcome)
	}
}

func TestVerifyExtractsEvidenceWhenVerdictOmitsIt(t *testing.T) {
	llm := func(ctx context.Context, objective, candidate string) (Verdict, error) {
		return Verdict{Outcome: store.OutcomePass}, nil
	}
	candidate := "See https://example.com/docs and [evidence: internal memo #42] for details."
	v := Verify(context.Background(), "obj", candidate, llm, false)
	if len(v.EvidenceRefs) != 2 {
		t.Fatalf("EvidenceRefs = %v, want 2 entries", v.EvidenceRefs)
	}
}
