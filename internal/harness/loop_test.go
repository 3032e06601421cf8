package harness

import (
	"context"
	"sync"
	"testing"

	"github.com/tinyagi/tinyagi/internal/store"
)

type fakeEvents struct {
	mu    sync.Mutex
	steps []*store.TaskStep
	evts  []*store.TaskEvent
}

func (f *fakeEvents) AppendEvent(ctx context.Context, ev *store.TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evts = append(f.evts, ev)
	return nil
}

func (f *fakeEvents) AppendStep(ctx context.Context, step *store.TaskStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step)
	return nil
}

func (f *fakeEvents) ListEvents(ctx context.Context, runID string) ([]*store.TaskEvent, error) {
	return f.evts, nil
}

func (f *fakeEvents) ListSteps(ctx context.Context, runID string) ([]*store.TaskStep, error) {
	return f.steps, nil
}

func TestBudgetByRisk(t *testing.T) {
	cases := []struct {
		risk store.RiskLevel
		want int
	}{
		{store.RiskLow, 1},
		{store.RiskMedium, 3},
		{store.RiskHigh, 5},
		{store.RiskCritical, 5},
	}
	for _, c := range cases {
		if got := Budget(c.risk); got != c.want {
			t.Errorf("Budget(%s) = %d, want %d", c.risk, got, c.want)
		}
	}
}

func TestRunPassOnFirstVerify(t *testing.T) {
	repo := &fakeEvents{}
	generate := func(ctx context.Context) (string, error) { return "draft", nil }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		return Verdict{Outcome: store.OutcomePass}, nil
	}
	revise := func(ctx context.Context, candidate string, verdict Verdict, iter int) (string, error) {
		t.Fatal("revise should not be called when verify passes immediately")
		return "", nil
	}

	result, err := Run(context.Background(), repo, "run1", Budget(store.RiskLow), generate, verify, revise)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Exhausted {
		t.Error("expected Exhausted=false on immediate pass")
	}
	if result.Output != "draft" {
		t.Errorf("Output = %q, want %q", result.Output, "draft")
	}
	if len(repo.evts) != 1 || repo.evts[0].Kind != "loop_completed" {
		t.Errorf("expected exactly one loop_completed event, got %+v", repo.evts)
	}
}

func TestRunAbstainStopsImmediately(t *testing.T) {
	repo := &fakeEvents{}
	generate := func(ctx context.Context) (string, error) { return "draft", nil }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		return Verdict{Outcome: store.OutcomeAbstain}, nil
	}
	revise := func(ctx context.Context, candidate string, verdict Verdict, iter int) (string, error) {
		t.Fatal("revise should not be called on abstain")
		return "", nil
	}

	result, err := Run(context.Background(), repo, "run1", Budget(store.RiskMedium), generate, verify, revise)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Exhausted {
		t.Error("expected Exhausted=false on abstain")
	}
}

func TestRunNonRevisableOutcomeStopsAtFirstVerify(t *testing.T) {
	// critical_fail and minor_fix ARE revisable per spec §4.F step 3 — only
	// an outcome outside {minor_fix, critical_fail} (or hitting budget) halts
	// without a further revise. Use a sentinel outcome to exercise that
	// "not revisable" branch distinctly from budget exhaustion.
	repo := &fakeEvents{}
	generate := func(ctx context.Context) (string, error) { return "draft", nil }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		return Verdict{Outcome: store.VerifierOutcome("unknown")}, nil
	}
	revise := func(ctx context.Context, candidate string, verdict Verdict, iter int) (string, error) {
		t.Fatal("revise should not be called for a non-revisable outcome")
		return "", nil
	}

	result, err := Run(context.Background(), repo, "run1", Budget(store.RiskHigh), generate, verify, revise)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Exhausted {
		t.Error("expected Exhausted=true for a non-revisable outcome")
	}
	if len(repo.evts) != 1 || repo.evts[0].Kind != "loop_exhausted" {
		t.Errorf("expected exactly one loop_exhausted event, got %+v", repo.evts)
	}
}

func TestRunRevisesUntilBudgetExhausted(t *testing.T) {
	repo := &fakeEvents{}
	budget := Budget(store.RiskMedium) // 3
	verifyCalls := 0

	generate := func(ctx context.Context) (string, error) { return "v0", nil }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		verifyCalls++
		return Verdict{Outcome: store.OutcomeMinorFix}, nil
	}
	revise := func(ctx context.Context, candidate string, verdict Verdict, iter int) (string, error) {
		return candidate + "!", nil
	}

	result, err := Run(context.Background(), repo, "run1", budget, generate, verify, revise)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Exhausted {
		t.Error("expected Exhausted=true after using the full budget without a pass")
	}
	// generate's verify (iteration 0) + one verify per revise up to budget.
	if verifyCalls != budget+1 {
		t.Errorf("verifyCalls = %d, want %d", verifyCalls, budget+1)
	}
	// loopsUsed (revise count) must never exceed budget(risk) — spec §8
	// "Loop budget" testable property.
	reviseSteps := 0
	for _, s := range repo.steps {
		if s.Kind == "revise" {
			reviseSteps++
		}
	}
	if reviseSteps > budget {
		t.Errorf("reviseSteps = %d, exceeds budget %d", reviseSteps, budget)
	}
	if len(repo.evts) != 1 || repo.evts[0].Kind != "loop_exhausted" {
		t.Errorf("expected exactly one loop_exhausted event, got %+v", repo.evts)
	}
}

func TestRunGenerateErrorPropagates(t *testing.T) {
	repo := &fakeEvents{}
	wantErr := context.Canceled
	generate := func(ctx context.Context) (string, error) { return "", wantErr }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		t.Fatal("verify should not run when generate fails")
		return Verdict{}, nil
	}
	revise := func(ctx context.Context, candidate string, verdict Verdict, iter int) (string, error) {
		t.Fatal("revise should not run when generate fails")
		return "", nil
	}

	if _, err := Run(context.Background(), repo, "run1", 1, generate, verify, revise); err == nil {
		t.Fatal("expected an error when generate fails")
	}
}
