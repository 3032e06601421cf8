package browser

import "testing"

func TestParseTypedSteps(t *testing.T) {
	candidate := `navigate("https://example.com/login")
click(#submit)
type("hello world", .search-box)
fill(#email, "user@example.com")
wait_for([data-ready])
press(Enter)
screenshot
extract_text(.result)`

	steps := Parse("", candidate)
	if len(steps) != 8 {
		t.Fatalf("got %d steps, want 8: %+v", len(steps), steps)
	}
	if steps[0].Kind != StepNavigate || steps[0].URL != "https://example.com/login" {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Kind != StepClick || steps[1].Selector != "#submit" {
		t.Errorf("step 1 = %+v", steps[1])
	}
	if steps[2].Kind != StepType || steps[2].Value != "hello world" || steps[2].Selector != ".search-box" {
		// .search-box starts with '.', so it stays CSS, not wrapped as text=.
		t.Errorf("step 2 = %+v", steps[2])
	}
	if steps[5].Kind != StepPress || steps[5].Key != "Enter" {
		t.Errorf("step 5 = %+v", steps[5])
	}
	if steps[6].Kind != StepScreenshot {
		t.Errorf("step 6 = %+v", steps[6])
	}
	if steps[7].Kind != StepExtractText || steps[7].Selector != ".result" {
		t.Errorf("step 7 = %+v", steps[7])
	}
}

func TestParseFallsBackToNavigateScreenshotWhenOnlyURLPresent(t *testing.T) {
	steps := Parse("please check out https://example.com/pricing for me", "no structured actions here")
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2: %+v", len(steps), steps)
	}
	if steps[0].Kind != StepNavigate || steps[0].URL != "https://example.com/pricing" {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Kind != StepScreenshot {
		t.Errorf("step 1 = %+v", steps[1])
	}
}

func TestParseNoActionsNoURLProducesNothing(t *testing.T) {
	steps := Parse("just chatting", "no urls or actions at all")
	if len(steps) != 0 {
		t.Fatalf("got %d steps, want 0: %+v", len(steps), steps)
	}
}

func TestNormalizeSelector(t *testing.T) {
	cases := map[string]string{
		"#submit":         "#submit",
		".search-box":     ".search-box",
		"[data-id=\"1\"]": "[data-id=\"1\"]",
		"text=Sign in":    "text=Sign in",
		"css=div.row":     "css=div.row",
		"xpath=//button":  "xpath=//button",
		"Sign in now":     "text=Sign in now",
		"submitButton":    "submitButton",
	}
	for in, want := range cases {
		if got := NormalizeSelector(in); got != want {
			t.Errorf("NormalizeSelector(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsPaymentRelated(t *testing.T) {
	if !IsPaymentRelated(Step{Selector: "#checkout-button"}) {
		t.Error("expected #checkout-button to be payment related")
	}
	if !IsPaymentRelated(Step{Value: "4111111111111111", URL: "https://bank.example.com/transfer"}) {
		t.Error("expected transfer URL to be payment related")
	}
	if IsPaymentRelated(Step{Selector: "#search-box", Value: "running shoes"}) {
		t.Error("did not expect a plain search step to be payment related")
	}
}

func TestDetectCheckpoint(t *testing.T) {
	if !DetectCheckpoint("", "Please complete the CAPTCHA to continue") {
		t.Error("expected captcha text to be detected")
	}
	if !DetectCheckpoint("https://example.com/2fa?session=expired", "") {
		t.Error("expected 2fa in URL to be detected")
	}
	if DetectCheckpoint("https://example.com/dashboard", "Welcome back!") {
		t.Error("did not expect a normal dashboard page to trigger a checkpoint")
	}
}
