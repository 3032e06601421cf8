package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/classify"
	"github.com/tinyagi/tinyagi/internal/invoker"
	"github.com/tinyagi/tinyagi/internal/store"
	"github.com/tinyagi/tinyagi/pkg/protocol"
)

// ToolingExecutor dispatches a verified run to the tooling route
// (spec §4.H). Implemented by internal/tooling.
type ToolingExecutor interface {
	Execute(ctx context.Context, runID, userID, objective, candidateOutput string) (string, error)
}

// BrowserExecutor dispatches a verified run to the browser route
// (spec §4.I). Implemented by internal/browser.
type BrowserExecutor interface {
	Execute(ctx context.Context, runID, userID, objective, candidateOutput string) (string, error)
}

// MemoryService ingests (objective, output) pairs (spec §4.J).
// Implemented by internal/memory.
type MemoryService interface {
	Ingest(ctx context.Context, userID, channel, objective, output, runID string) error
}

// SkillsService auto-drafts a skill from a verified run when the
// objective matches trigger phrases (spec §4.K). Implemented by
// internal/skills.
type SkillsService interface {
	MaybeAutoDraft(ctx context.Context, route store.Route, objective string) error
}

// AgentResolver decides which agent handles a run, including the
// browser-route override to a Claude-family agent (spec §4.L:
// "Routes browser runs to a Claude-family agent override when
// configured").
type AgentResolver interface {
	ResolveAgent(agentIDHint string, route store.Route) (agentID string, family string, binary string, model string, fallbackModel string, workspace string, err error)
}

// Orchestrator ties the repository, classifier, router/invoker,
// tooling, browser, memory, and skills components together for one
// message (spec §4.L).
type Orchestrator struct {
	repo     store.Repository
	gate     *Gate
	tooling  ToolingExecutor
	browser  BrowserExecutor
	memory   MemoryService
	skills   SkillsService
	resolver AgentResolver
	viz      *protocol.Sink

	verifierFailClosed bool
}

// NewOrchestrator builds an Orchestrator. viz may be nil, in which case
// events are recorded to the repository only and never mirrored to the
// visualizer stream.
func NewOrchestrator(repo store.Repository, gate *Gate, tooling ToolingExecutor, browser BrowserExecutor, memory MemoryService, skills SkillsService, resolver AgentResolver, viz *protocol.Sink, verifierFailClosed bool) *Orchestrator {
	return &Orchestrator{repo: repo, gate: gate, tooling: tooling, browser: browser, memory: memory, skills: skills, resolver: resolver, viz: viz, verifierFailClosed: verifierFailClosed}
}

// Input is one message to run through the harness.
type Input struct {
	Channel        string
	Sender         string
	SenderID       string
	ConversationID string
	MessageID      string
	FromAgent      string
	AgentIDHint    string
	Objective      string
}

// Outcome is the terminal status and user-facing text after a run.
type Outcome struct {
	RunID  string
	Status store.TaskStatus
	Text   string
}

// RunID builds the deterministic run identifier spec §4.L describes:
// "conversationId|messageId + agentId + fromAgent" plus a timestamp and
// UUID slice.
func RunID(conversationID, messageID, agentID, fromAgent string) string {
	key := conversationID
	if key == "" {
		key = messageID
	}
	ts := time.Now().UnixMilli()
	u := uuid.NewString()
	return fmt.Sprintf("%s-%s-%s-%d-%s", key, agentID, fromAgent, ts, u[:8])
}

// Handle runs one message end to end: classify risk/route, run the
// generate/verify/revise loop via the agent invoker, ingest memory,
// apply the publish gate, dispatch to the route executor, maybe
// auto-draft a skill, and finalize the run status (spec §4.L).
func (o *Orchestrator) Handle(ctx context.Context, in Input) (Outcome, error) {
	runID := RunID(in.ConversationID, in.MessageID, in.AgentIDHint, in.FromAgent)

	risk, riskReasons := classify.ClassifyRisk(in.Objective)
	route, routeReason := classify.ClassifyRoute(in.Objective)

	run := &store.TaskRun{
		RunID:          runID,
		TaskID:         runID,
		Channel:        in.Channel,
		Sender:         in.Sender,
		SenderID:       in.SenderID,
		ConversationID: in.ConversationID,
		Objective:      in.Objective,
		RiskLevel:      risk,
		Status:         store.StatusInProgress,
		MaxIterations:  Budget(risk),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := o.repo.CreateRun(ctx, run); err != nil {
		return Outcome{}, fmt.Errorf("harness: create run %s: %w", runID, err)
	}

	o.event(ctx, runID, "risk_classified", map[string]any{"risk": string(risk), "reasons": riskReasons})
	o.event(ctx, runID, "task_routed", map[string]any{"route": string(route), "reason": routeReason})

	agentID, family, binary, model, fallbackModel, workspace, err := o.resolver.ResolveAgent(in.AgentIDHint, route)
	if err != nil {
		return o.fail(ctx, run, err)
	}
	run.AssignedAgent = agentID

	provider, err := invoker.New(family)
	if err != nil {
		return o.fail(ctx, run, err)
	}

	invoke := func(iterCtx context.Context, message string, resume bool) (string, error) {
		res, err := provider.Invoke(iterCtx, invoker.Request{
			AgentID: agentID, Binary: binary, Model: model, FallbackModel: fallbackModel,
			Workspace: workspace, Message: message, ResumeSession: resume,
		})
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}

	generate := func(iterCtx context.Context) (string, error) {
		return invoke(iterCtx, in.Objective, false)
	}
	revise := func(iterCtx context.Context, candidate string, verdict Verdict, iteration int) (string, error) {
		reviseMsg := fmt.Sprintf("Revise your previous answer. Findings: %s. Required actions: %s.",
			strings.Join(verdict.Findings, "; "), strings.Join(verdict.RequiredActions, "; "))
		return invoke(iterCtx, reviseMsg, true)
	}
	verify := func(iterCtx context.Context, candidate string, iteration int) (Verdict, error) {
		llmVerify := func(vctx context.Context, objective, cand string) (Verdict, error) {
			text, err := invoke(vctx, fmt.Sprintf("Critique this candidate answer to %q:\n%s", objective, cand), true)
			if err != nil {
				return Verdict{}, err
			}
			return parseVerdict(text), nil
		}
		return Verify(iterCtx, in.Objective, candidate, llmVerify, o.verifierFailClosed), nil
	}

	result, err := Run(ctx, o.repo, runID, run.MaxIterations, generate, verify, revise)
	if err != nil {
		return o.fail(ctx, run, err)
	}
	run.ResultText = result.Output
	run.VerifierOutcome = result.Verdict.Outcome
	run.LoopIteration = result.Iteration

	if err := o.memory.Ingest(ctx, in.SenderID, in.Channel, in.Objective, result.Output, runID); err != nil {
		o.event(ctx, runID, "memory_ingest_failed", map[string]any{"error": err.Error()})
	} else {
		o.event(ctx, runID, "memory_ingested", nil)
	}

	if result.Exhausted {
		run.Status = store.StatusNeedsInput
		o.event(ctx, runID, "needs_input", map[string]any{"findings": result.Verdict.Findings})
		return o.finalize(ctx, run, "I need more input to finish this — "+strings.Join(result.Verdict.RequiredActions, "; "))
	}

	decision, err := o.gate.Decide(ctx, runID, in.SenderID, result.Output, route, risk)
	if err != nil {
		return o.fail(ctx, run, err)
	}
	if !decision.Allow {
		run.Status = store.StatusAwaitingApproval
		o.event(ctx, runID, "awaiting_approval", map[string]any{"request_id": decision.RequestID, "reason": decision.Reason})
		return o.finalize(ctx, run, "This needs your approval before I can send it (request "+decision.RequestID+").")
	}

	dispatchText := result.Output
	switch route {
	case store.RouteBrowser:
		out, err := o.browser.Execute(ctx, runID, in.SenderID, in.Objective, result.Output)
		if err != nil {
			return o.fail(ctx, run, err)
		}
		dispatchText = out
		o.event(ctx, runID, "browser_execution", nil)
	case store.RouteTooling:
		out, err := o.tooling.Execute(ctx, runID, in.SenderID, in.Objective, result.Output)
		if err != nil {
			return o.fail(ctx, run, err)
		}
		dispatchText = out
		o.event(ctx, runID, "tooling_execution", nil)
	}

	if err := o.skills.MaybeAutoDraft(ctx, route, in.Objective); err != nil {
		o.event(ctx, runID, "skill_autodraft_failed", map[string]any{"error": err.Error()})
	}

	run.Status = store.StatusVerified
	o.event(ctx, runID, "verified", nil)
	return o.finalize(ctx, run, dispatchText)
}

func (o *Orchestrator) finalize(ctx context.Context, run *store.TaskRun, text string) (Outcome, error) {
	run.UpdatedAt = time.Now()
	if err := o.repo.UpdateRun(ctx, run); err != nil {
		return Outcome{}, fmt.Errorf("harness: finalize run %s: %w", run.RunID, err)
	}
	return Outcome{RunID: run.RunID, Status: run.Status, Text: text}, nil
}

func (o *Orchestrator) fail(ctx context.Context, run *store.TaskRun, cause error) (Outcome, error) {
	run.Status = store.StatusFailed
	run.ResultText = translateError(cause)
	run.UpdatedAt = time.Now()
	_ = o.repo.UpdateRun(ctx, run)
	o.event(ctx, run.RunID, "failed", map[string]any{"error": cause.Error()})
	return Outcome{RunID: run.RunID, Status: store.StatusFailed, Text: run.ResultText}, nil
}

func (o *Orchestrator) event(ctx context.Context, runID, kind string, payload map[string]any) {
	_ = o.repo.AppendEvent(ctx, &store.TaskEvent{
		EventID: uuid.NewString(), RunID: runID, Kind: kind, Payload: payload, CreatedAt: time.Now(),
	})
	o.viz.Emit(runID, kind, payload)
}

// translateError gives a user-facing message for known subprocess
// errors (spec §4.L: "mark run failed with a user-facing translation of
// known subprocess errors").
func translateError(err error) string {
	switch {
	case errors.Is(err, invoker.ErrBinaryMissing):
		return "The assigned agent isn't installed or reachable right now."
	case errors.Is(err, invoker.ErrModelUnavailable):
		return "The configured model is unavailable for this agent."
	case errors.Is(err, invoker.ErrNoPriorSession):
		return "I couldn't resume the previous conversation, so I started a new one."
	default:
		return "Something went wrong while working on this."
	}
}

// parseVerdict parses a verifier agent's free-text critique into a
// Verdict, defaulting to an empty (unparsable) Verdict when it cannot
// find a recognized outcome keyword — Verify's fail-open path handles
// that case.
func parseVerdict(text string) Verdict {
	lower := strings.ToLower(text)
	v := Verdict{}
	switch {
	case strings.Contains(lower, "critical_fail") || strings.Contains(lower, "critical fail"):
		v.Outcome = store.OutcomeCriticalFail
	case strings.Contains(lower, "minor_fix") || strings.Contains(lower, "minor fix"):
		v.Outcome = store.OutcomeMinorFix
	case strings.Contains(lower, "abstain"):
		v.Outcome = store.OutcomeAbstain
	case strings.Contains(lower, "pass"):
		v.Outcome = store.OutcomePass
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "finding:") {
			v.Findings = append(v.Findings, strings.TrimSpace(line[len("finding:"):]))
		}
		if strings.HasPrefix(strings.ToLower(line), "required:") {
			v.RequiredActions = append(v.RequiredActions, strings.TrimSpace(line[len("required:"):]))
		}
	}
	return v
}
