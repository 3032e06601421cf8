// Package harness implements the generator → verifier → reviser loop
// (spec §4.F), its publish gate (§4.G), the verifier's fast-path and
// fail-open policy, and the top-level orchestrator (§4.L) that ties the
// repository, classifier, router, invoker, tooling, browser, memory,
// and skills components together for one message.
//
// Grounded on the teacher's internal/agent/loop.go Run/runLoop
// iteration-loop structure (context setup, iterate-until-budget,
// append-step-record-each-turn) — generalized from a single
// request/response turn to the generate/verify/revise triple this spec
// requires.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/store"
)

// Budget returns the iteration budget for a risk level (spec §4.F:
// "low→1, medium→3, high/critical→5").
func Budget(risk store.RiskLevel) int {
	switch risk {
	case store.RiskMedium:
		return 3
	case store.RiskHigh, store.RiskCritical:
		return 5
	default:
		return 1
	}
}

// Verdict is the outcome of one verify call.
type Verdict struct {
	Outcome          store.VerifierOutcome
	Findings         []string
	RequiredActions  []string
	EvidenceRefs     []string
}

// GenerateFunc produces a new candidate from scratch (iteration 0).
type GenerateFunc func(ctx context.Context) (string, error)

// VerifyFunc checks a candidate at a given iteration.
type VerifyFunc func(ctx context.Context, candidate string, iteration int) (Verdict, error)

// ReviseFunc produces a revised candidate given the prior verdict.
type ReviseFunc func(ctx context.Context, candidate string, verdict Verdict, iteration int) (string, error)

// Result is the outcome of a full loop run.
type Result struct {
	Output    string
	Verdict   Verdict
	Exhausted bool
	Iteration int
}

// Run executes the generate → verify → (revise → verify)* loop up to
// budget iterations, implementing spec §4.F's contract exactly:
//
//  1. generate → step record.
//  2. verify → step record.
//  3. while iter < budget: if outcome ∈ {pass, abstain} return
//     (output, verdict, exhausted=false). If outcome ∉
//     {minor_fix, critical_fail} or iter == budget return
//     exhausted=true. Otherwise revise → step record, then verify.
//
// Records a loop_completed or loop_exhausted event exactly once via the
// repo's AppendEvent, and every generate/verify/revise call via
// AppendStep.
func Run(ctx context.Context, repo store.Events, runID string, budget int, generate GenerateFunc, verify VerifyFunc, revise ReviseFunc) (Result, error) {
	iteration := 0

	candidate, err := generate(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("harness loop: generate: %w", err)
	}
	if err := appendStep(ctx, repo, runID, iteration, "generate", candidate, ""); err != nil {
		return Result{}, err
	}

	verdict, err := verify(ctx, candidate, iteration)
	if err != nil {
		return Result{}, fmt.Errorf("harness loop: verify: %w", err)
	}
	if err := appendStep(ctx, repo, runID, iteration, "verify", candidate, verdict.Outcome); err != nil {
		return Result{}, err
	}

	for {
		if verdict.Outcome == store.OutcomePass || verdict.Outcome == store.OutcomeAbstain {
			return finish(ctx, repo, runID, candidate, verdict, iteration, false)
		}

		notRevisable := verdict.Outcome != store.OutcomeMinorFix && verdict.Outcome != store.OutcomeCriticalFail
		if notRevisable || iteration == budget {
			return finish(ctx, repo, runID, candidate, verdict, iteration, true)
		}

		iteration++

		candidate, err = revise(ctx, candidate, verdict, iteration)
		if err != nil {
			return Result{}, fmt.Errorf("harness loop: revise at iteration %d: %w", iteration, err)
		}
		if err := appendStep(ctx, repo, runID, iteration, "revise", candidate, ""); err != nil {
			return Result{}, err
		}

		verdict, err = verify(ctx, candidate, iteration)
		if err != nil {
			return Result{}, fmt.Errorf("harness loop: verify at iteration %d: %w", iteration, err)
		}
		if err := appendStep(ctx, repo, runID, iteration, "verify", candidate, verdict.Outcome); err != nil {
			return Result{}, err
		}
	}
}

func finish(ctx context.Context, repo store.Events, runID, output string, verdict Verdict, iteration int, exhausted bool) (Result, error) {
	kind := "loop_completed"
	if exhausted {
		kind = "loop_exhausted"
	}
	if err := repo.AppendEvent(ctx, &store.TaskEvent{
		EventID:   uuid.NewString(),
		RunID:     runID,
		Kind:      kind,
		Payload:   map[string]any{"outcome": string(verdict.Outcome), "findings": verdict.Findings},
		CreatedAt: time.Now(),
	}); err != nil {
		return Result{}, fmt.Errorf("harness loop: append %s event: %w", kind, err)
	}
	return Result{Output: output, Verdict: verdict, Exhausted: exhausted, Iteration: iteration}, nil
}

func appendStep(ctx context.Context, repo store.Events, runID string, iteration int, kind, content string, outcome store.VerifierOutcome) error {
	if err := repo.AppendStep(ctx, &store.TaskStep{
		StepID:    uuid.NewString(),
		RunID:     runID,
		Iteration: iteration,
		Kind:      kind,
		Content:   content,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("harness loop: append %s step: %w", kind, err)
	}
	return nil
}
