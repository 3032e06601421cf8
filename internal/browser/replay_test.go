package browser

import "testing"

func TestPlanToObjectiveTextRoundTripsThroughParse(t *testing.T) {
	plan := []Step{
		{Kind: StepNavigate, URL: "https://example.com/login"},
		{Kind: StepClick, Selector: "#submit"},
		{Kind: StepType, Value: "hello", Selector: "#search"},
		{Kind: StepFill, Selector: "#email", Value: "user@example.com"},
		{Kind: StepWaitFor, Selector: "#ready"},
		{Kind: StepPress, Key: "Enter"},
		{Kind: StepScreenshot},
		{Kind: StepExtractText, Selector: "#result"},
	}

	text := planToObjectiveText(plan)
	reparsed := Parse("", text)

	if len(reparsed) != len(plan) {
		t.Fatalf("Parse(planToObjectiveText(plan)) produced %d steps, want %d: %q", len(reparsed), len(plan), text)
	}
	for i := range plan {
		if reparsed[i].Kind != plan[i].Kind {
			t.Errorf("step %d Kind = %s, want %s", i, reparsed[i].Kind, plan[i].Kind)
		}
	}
}

func TestPlanToObjectiveTextEmptyPlan(t *testing.T) {
	if got := planToObjectiveText(nil); got != "" {
		t.Errorf("planToObjectiveText(nil) = %q, want empty", got)
	}
}
