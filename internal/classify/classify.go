// Package classify implements the risk classifier and task router
// (spec §4.E): ordered regex tables with a human-readable reason per
// match, grounded on the teacher's internal/tools/policy.go static
// allow/deny-table idiom (toolGroups, toolProfiles) generalized from a
// tool-allowlist to a risk/route keyword table.
package classify

import (
	"regexp"
	"strings"

	"github.com/tinyagi/tinyagi/internal/store"
)

// riskRule pairs a pattern with the risk level it implies.
type riskRule struct {
	pattern *regexp.Regexp
	level   store.RiskLevel
	reason  string
}

// Ordered so that the first-declared, highest-severity matching rule
// can be found by scanning for the maximum level across all matches
// (spec §4.E: "the maximum matched level wins").
var riskRules = []riskRule{
	{regexp.MustCompile(`(?i)\b(delete|wipe|format|drop database|rm -rf|factory reset)\b`), store.RiskCritical, "destructive keyword"},
	{regexp.MustCompile(`(?i)\b(payment|wire transfer|send money|bank account|ssn|social security)\b`), store.RiskCritical, "financial/identity keyword"},
	{regexp.MustCompile(`(?i)\b(production|prod deploy|publish release|push to main|merge to main)\b`), store.RiskHigh, "production-impacting keyword"},
	{regexp.MustCompile(`(?i)\b(install|uninstall|upgrade|downgrade|sudo|chmod|chown)\b`), store.RiskHigh, "system-modifying keyword"},
	{regexp.MustCompile(`(?i)\b(login|sign in|password|credential|2fa|otp)\b`), store.RiskMedium, "credential-adjacent keyword"},
	{regexp.MustCompile(`(?i)\b(draft|schedule|remind|summarize|look up|search)\b`), store.RiskLow, "informational keyword"},
}

// ClassifyRisk returns the maximum risk level matched by text and the
// reasons for every contributing match. An empty match defaults to low
// (spec §4.E: "empty match → low").
func ClassifyRisk(text string) (store.RiskLevel, []string) {
	best := store.RiskLow
	var reasons []string
	for _, rule := range riskRules {
		if rule.pattern.MatchString(text) {
			reasons = append(reasons, rule.reason)
			if riskRank(rule.level) > riskRank(best) {
				best = rule.level
			}
		}
	}
	return best, reasons
}

func riskRank(r store.RiskLevel) int {
	switch r {
	case store.RiskCritical:
		return 3
	case store.RiskHigh:
		return 2
	case store.RiskMedium:
		return 1
	default:
		return 0
	}
}

var (
	browserRe = regexp.MustCompile(`(?i)\b(chrome|browser|navigate|click|log\s*in to|website|webpage|url)\b`)
	toolingRe = regexp.MustCompile(`(?i)\b(install|uninstall|npm|npx|pip|brew|git clone|docker|package manager|tool)\b`)
	memoryRe  = regexp.MustCompile(`(?i)\b(remember|preference|my workflow|always do|never do)\b`)
)

// ClassifyRoute applies the precedence browser > tooling > memory >
// agent (spec §4.E) and returns the route plus a reason.
func ClassifyRoute(text string) (store.Route, string) {
	switch {
	case browserRe.MatchString(text):
		return store.RouteBrowser, "matched browser keyword"
	case toolingRe.MatchString(text):
		return store.RouteTooling, "matched tooling keyword"
	case memoryRe.MatchString(text):
		return store.RouteMemory, "matched memory keyword"
	default:
		return store.RouteAgent, "no specialized route keyword matched"
	}
}

// Intent is the queue processor's coarse message classification (spec
// §4.N step 6: "question|browser_task|engineering_task|general_task"),
// used to decide whether an immediate ack is warranted and whether a
// "Done!" completion prefix applies to the eventual response.
type Intent string

const (
	IntentQuestion        Intent = "question"
	IntentBrowserTask     Intent = "browser_task"
	IntentEngineeringTask Intent = "engineering_task"
	IntentGeneralTask     Intent = "general_task"
)

var (
	questionRe    = regexp.MustCompile(`(?i)^\s*(who|what|when|where|why|how|is|are|do|does|did|can|could|would|should)\b.*\?\s*$`)
	engineeringRe = regexp.MustCompile(`(?i)\b(bug|deploy|refactor|code|commit|pull request|pr|test|build|compile|function|repo|repository|endpoint)\b`)
)

// ClassifyIntent returns the coarse intent used to gate ack messages
// and the "Done!" completion prefix (spec §4.N step 6). A trailing "?"
// with a leading interrogative wins, as does a trailing "?" on a message
// of at most 20 words; otherwise a browser/engineering keyword match
// wins; anything else is a general task.
func ClassifyIntent(text string) Intent {
	trimmed := strings.TrimSpace(text)
	if questionRe.MatchString(trimmed) || (strings.HasSuffix(trimmed, "?") && len(strings.Fields(trimmed)) <= 20) {
		return IntentQuestion
	}
	if browserRe.MatchString(text) {
		return IntentBrowserTask
	}
	if engineeringRe.MatchString(text) {
		return IntentEngineeringTask
	}
	return IntentGeneralTask
}
