package harness

import (
	"context"
	"regexp"
	"strings"

	"github.com/tinyagi/tinyagi/internal/store"
)

// LLMVerify is implemented by a caller that asks an agent to critique a
// candidate and parses the structured verdict out of its response. It
// is tolerated to fail to parse — Verify treats that as
// pass (spec §4.F: "LLM-driven verifier is tolerated to be unparsable
// and defaults to pass in that case").
type LLMVerify func(ctx context.Context, objective, candidate string) (Verdict, error)

var evidenceTokenRe = regexp.MustCompile(`\[evidence:\s*([^\]]+)\]`)
var urlRe = regexp.MustCompile(`https?://\S+`)

// placeholderPatterns match canned error/placeholder text a candidate
// should never legitimately contain (spec §4.F fast-path).
var placeholderPatterns = []string{
	"todo: implement",
	"lorem ipsum",
	"i cannot help with that",
	"an error occurred while processing",
	"[placeholder]",
}

// FastPath applies the empty/tiny and placeholder-text fast paths
// before falling back to the LLM-driven verifier (spec §4.F). Returns
// (verdict, true) if a fast path fired.
func FastPath(candidate string) (Verdict, bool) {
	trimmed := strings.TrimSpace(candidate)
	if len(trimmed) < 8 {
		return Verdict{Outcome: store.OutcomeCriticalFail, Findings: []string{"candidate output is empty or too short"}}, true
	}

	lower := strings.ToLower(trimmed)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return Verdict{Outcome: store.OutcomeCriticalFail, Findings: []string{"candidate output looks like placeholder/error text"}}, true
		}
	}

	return Verdict{}, false
}

// Verify runs the fast-path checks, then the LLM-driven verifier,
// failing open (defaulting to pass) on any LLM or parse error — an
// explicit policy decision (spec §4.F) to avoid user-facing blocking on
// verifier flakes. VerifierFailClosed flips this so a verifier error
// becomes critical_fail instead, for deployments that would rather
// block than risk publishing an unverified answer.
func Verify(ctx context.Context, objective, candidate string, llmVerify LLMVerify, failClosed bool) Verdict {
	if v, fired := FastPath(candidate); fired {
		return v
	}

	verdict, err := llmVerify(ctx, objective, candidate)
	if err != nil {
		if failClosed {
			return Verdict{Outcome: store.OutcomeCriticalFail, Findings: []string{"verifier error: " + err.Error()}}
		}
		return Verdict{Outcome: store.OutcomePass}
	}

	if verdict.Outcome == "" {
		// Unparsable verdict: fail open regardless of failClosed, since
		// this is the "tolerated to be unparsable" case distinct from a
		// hard verifier exception.
		return Verdict{Outcome: store.OutcomePass}
	}

	if len(verdict.EvidenceRefs) == 0 {
		verdict.EvidenceRefs = extractEvidence(candidate)
	}
	return verdict
}

func extractEvidence(candidate string) []string {
	var refs []string
	for _, m := range urlRe.FindAllString(candidate, -1) {
		refs = append(refs, m)
	}
	for _, m := range evidenceTokenRe.FindAllStringSubmatch(candidate, -1) {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	return refs
}
