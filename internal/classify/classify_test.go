package classify

import (
	"testing"

	"github.com/tinyagi/tinyagi/internal/store"
)

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		name string
		text string
		want store.RiskLevel
	}{
		{name: "empty text defaults low", text: "", want: store.RiskLow},
		{name: "no keyword defaults low", text: "what time is it", want: store.RiskLow},
		{name: "informational keyword is low", text: "please summarize this thread", want: store.RiskLow},
		{name: "credential keyword is medium", text: "update my password", want: store.RiskMedium},
		{name: "system-modifying keyword is high", text: "sudo install this package", want: store.RiskHigh},
		{name: "production keyword is high", text: "push to main now", want: store.RiskHigh},
		{name: "destructive keyword is critical", text: "please rm -rf the build dir", want: store.RiskCritical},
		{name: "financial keyword is critical", text: "send money to this account", want: store.RiskCritical},
		{name: "max of multiple matches wins", text: "sudo install then wire transfer the funds", want: store.RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reasons := ClassifyRisk(tt.text)
			if got != tt.want {
				t.Errorf("ClassifyRisk(%q) = %v (reasons=%v), want %v", tt.text, got, reasons, tt.want)
			}
		})
	}
}

func TestClassifyRoute(t *testing.T) {
	tests := []struct {
		name string
		text string
		want store.Route
	}{
		{name: "no keyword falls back to agent", text: "how's it going", want: store.RouteAgent},
		{name: "memory keyword", text: "remember that I prefer dark mode", want: store.RouteMemory},
		{name: "tooling keyword", text: "please npm install the deps", want: store.RouteTooling},
		{name: "browser keyword", text: "navigate to the checkout page", want: store.RouteBrowser},
		{name: "browser wins over tooling", text: "open chrome and git clone the repo", want: store.RouteBrowser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ClassifyRoute(tt.text)
			if got != tt.want {
				t.Errorf("ClassifyRoute(%q) = %v (%s), want %v", tt.text, got, reason, tt.want)
			}
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{name: "question", text: "what is the status of the deploy?", want: IntentQuestion},
		{name: "browser task", text: "navigate to the signup page and fill the form", want: IntentBrowserTask},
		{name: "engineering task", text: "fix the bug in the login endpoint", want: IntentEngineeringTask},
		{name: "general task", text: "order more coffee for the office", want: IntentGeneralTask},
		{name: "long question-like sentence without interrogative is not a question", text: "this is a very long sentence that happens to end with a question mark even though it is not really a question at all?", want: IntentGeneralTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyIntent(tt.text)
			if got != tt.want {
				t.Errorf("ClassifyIntent(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
