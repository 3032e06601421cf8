// Package browser implements the browser-automation subsystem (spec
// §4.I): plan parsing, CDP/broker/MCP-channel provider selection,
// profile mirroring, a per-step execution loop with retries and
// human-checkpoint detection, and selector-trace replay. Grounded on
// the teacher's go.mod dependency on github.com/go-rod/rod — the
// retrieval pack's teacher source does not yet exercise this
// dependency, so this package is this spec's first real consumer of it.
// The mcp_channel provider path (mcp.go) is grounded on the teacher's
// internal/mcp package, which speaks github.com/mark3labs/mcp-go.
package browser

import (
	"regexp"
	"strings"
)

// StepKind enumerates the typed browser steps spec §4.I names.
type StepKind string

const (
	StepNavigate    StepKind = "navigate"
	StepClick       StepKind = "click"
	StepType        StepKind = "type"
	StepFill        StepKind = "fill"
	StepWaitFor     StepKind = "wait_for"
	StepPress       StepKind = "press"
	StepScreenshot  StepKind = "screenshot"
	StepExtractText StepKind = "extract_text"
)

// Step is one planned browser action.
type Step struct {
	Kind     StepKind
	URL      string
	Selector string
	Value    string
	Key      string
}

var (
	navigateRe = regexp.MustCompile(`(?i)^navigate\((.+)\)$`)
	clickRe    = regexp.MustCompile(`(?i)^click\((.+)\)$`)
	typeRe     = regexp.MustCompile(`(?i)^type\((.+?),\s*(.+)\)$`)
	fillRe     = regexp.MustCompile(`(?i)^fill\((.+?),\s*(.+)\)$`)
	waitForRe  = regexp.MustCompile(`(?i)^wait_for\((.+)\)$`)
	pressRe    = regexp.MustCompile(`(?i)^press\((.+)\)$`)
	extractRe  = regexp.MustCompile(`(?i)^extract_text\((.+)\)$`)
	urlRe      = regexp.MustCompile(`https?://\S+`)
)

// Parse parses objective + candidateOutput into a typed step list (spec
// §4.I "Planning"). If no actions parse but a URL is present, it
// produces [navigate, screenshot].
func Parse(objective, candidateOutput string) []Step {
	text := objective + "\n" + candidateOutput
	var steps []Step

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case navigateRe.MatchString(line):
			m := navigateRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepNavigate, URL: unquote(m[1])})
		case clickRe.MatchString(line):
			m := clickRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepClick, Selector: NormalizeSelector(unquote(m[1]))})
		case typeRe.MatchString(line):
			m := typeRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepType, Value: unquote(m[1]), Selector: NormalizeSelector(unquote(m[2]))})
		case fillRe.MatchString(line):
			m := fillRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepFill, Selector: NormalizeSelector(unquote(m[1])), Value: unquote(m[2])})
		case waitForRe.MatchString(line):
			m := waitForRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepWaitFor, Selector: NormalizeSelector(unquote(m[1]))})
		case pressRe.MatchString(line):
			m := pressRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepPress, Key: unquote(m[1])})
		case strings.EqualFold(line, "screenshot"):
			steps = append(steps, Step{Kind: StepScreenshot})
		case extractRe.MatchString(line):
			m := extractRe.FindStringSubmatch(line)
			steps = append(steps, Step{Kind: StepExtractText, Selector: NormalizeSelector(unquote(m[1]))})
		}
	}

	if len(steps) == 0 {
		if u := urlRe.FindString(text); u != "" {
			steps = []Step{{Kind: StepNavigate, URL: u}, {Kind: StepScreenshot}}
		}
	}

	return steps
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// NormalizeSelector implements spec §4.I's selector normalization:
// leading #/./[ stays CSS; text=/css=/xpath= prefixes are kept verbatim;
// multi-word untagged values wrap as text=<value>; single identifiers
// pass through.
func NormalizeSelector(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	switch raw[0] {
	case '#', '.', '[':
		return raw
	}
	for _, prefix := range []string{"text=", "css=", "xpath="} {
		if strings.HasPrefix(raw, prefix) {
			return raw
		}
	}
	if strings.ContainsAny(raw, " \t") {
		return "text=" + raw
	}
	return raw
}

// IsPaymentRelated reports whether a step's selector/value/URL contains
// payment-sensitive keywords (spec §4.I: "pay/checkout/purchase/wallet/
// transfer/card/cvv").
func IsPaymentRelated(s Step) bool {
	haystack := strings.ToLower(s.Selector + " " + s.Value + " " + s.URL)
	for _, kw := range []string{"pay", "checkout", "purchase", "wallet", "transfer", "card", "cvv"} {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// checkpointPatterns match tokens that indicate a human checkpoint
// (captcha/2FA/session-expired) in a URL or visible page text (spec
// §4.I: "detect human checkpoint").
var checkpointPatterns = regexp.MustCompile(`(?i)(captcha|two[-_]?factor|2fa|verification code|session expired|sign in to continue|verify it'?s you)`)

// DetectCheckpoint reports whether url or pageText indicates a human
// checkpoint is blocking automated progress.
func DetectCheckpoint(url, pageText string) bool {
	return checkpointPatterns.MatchString(url) || checkpointPatterns.MatchString(pageText)
}
