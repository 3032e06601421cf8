// Package scheduler implements the queue-processing loop (spec §4.N):
// a 1 s tick lists incoming/, peeks each file's effective agentId, and
// dispatches into a per-agent sequential pipeline so messages for the
// same agent never run concurrently while different agents make
// progress in parallel. It also owns the in-memory team Conversation
// aggregation state (spec §3) and the response post-processing spec
// §4.N steps 8-9 describe (completion prefix, send_file extraction,
// long-response spill, chat transcript). Grounded on the teacher's
// internal/channels/manager.go dispatch loop (ctx-cancelable goroutine,
// slog.Info lifecycle logging, sync.Map per-run bookkeeping) adapted
// from a single outbound-bus consumer into a per-agent fan-out.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinyagi/tinyagi/internal/classify"
	"github.com/tinyagi/tinyagi/internal/harness"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/router"
	"github.com/tinyagi/tinyagi/internal/store"
)

const (
	tickInterval = 1 * time.Second
	// maxMessages caps a single team conversation (spec §3: "fixed at
	// 50"); once reached, further teammate mentions are dropped with a
	// warning but already-spawned branches still resolve.
	maxMessages      = 50
	aggregationSep   = "\n------\n"
	maxOutgoingChars = 4000
)

// Directory resolves agent/team identifiers, shared with internal/router.
type Directory interface {
	router.Directory
	DefaultAgent() string
}

// Handler runs one message through the harness and returns its outcome.
type Handler interface {
	Handle(ctx context.Context, in harness.Input) (harness.Outcome, error)
}

// Deferrer hands a message to the proactive scheduler's outbox instead
// of writing it directly, so urgent acks still flow through one outbox
// writer and non-urgent messages respect quiet hours (spec §4.M, §4.N
// step 6: "enqueue an immediate ack message through the proactive
// scheduler (urgent)").
type Deferrer interface {
	Defer(env store.MessageEnvelope, urgent bool) error
}

// conversationOrigin is the immutable subset of conversation fields
// needed after it has been deleted from the live map, captured under
// lock rather than copying the struct (which embeds a sync.Mutex).
type conversationOrigin struct {
	teamID    string
	channel   string
	sender    string
	senderID  string
	messageID string
}

// branchResponse is one team member's completed response within a
// Conversation (spec §3: "ordered list of {agentId, response}").
type branchResponse struct {
	agentID string
	text    string
}

// conversation is the in-memory aggregation state for one originating
// team message across all its branches (spec §3 "Conversation"). It is
// best-effort: lost on restart, by design (spec §9 design note) —
// already-open external conversations are superseded by new inbound
// traffic instead of being replayed.
type conversation struct {
	mu sync.Mutex

	teamID    string
	channel   string
	sender    string
	senderID  string
	messageID string

	responses     []branchResponse
	attachments   []string
	pending       int
	totalMessages int
	mentionCounts map[string]int
	startedAt     time.Time
}

// Scheduler owns the 1 s tick, the per-agent dispatch pipelines, and
// the live Conversation map.
type Scheduler struct {
	spooler        *queue.Spooler
	dir            Directory
	handler        Handler
	repo           store.Repository
	proactive      Deferrer
	chatDir        string
	filesDir       string
	harnessEnabled bool
	logger         *slog.Logger

	mu            sync.Mutex
	agentQueues   map[string]chan string // agentId -> filenames awaiting processing
	conversations map[string]*conversation
	eg            *errgroup.Group // drains per-agent pipelines cleanly on shutdown
}

// New builds a Scheduler.
func New(spooler *queue.Spooler, dir Directory, handler Handler, repo store.Repository, chatDir string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		spooler: spooler, dir: dir, handler: handler, repo: repo, chatDir: chatDir, logger: logger,
		harnessEnabled: true,
		agentQueues:    map[string]chan string{},
		conversations:  map[string]*conversation{},
	}
}

// WithProactive wires the proactive scheduler so ack messages and
// outgoing conversation replies can be deferred/flushed through the
// same quiet-hours-aware outbox (spec §4.N step 6).
func (s *Scheduler) WithProactive(p Deferrer) *Scheduler {
	s.proactive = p
	return s
}

// WithFilesDir sets the attachment spill directory for long responses
// (spec §8: "a .md attachment exists in files[]").
func (s *Scheduler) WithFilesDir(dir string) *Scheduler {
	s.filesDir = dir
	return s
}

// WithHarnessEnabled toggles the harness supersession bookkeeping for
// external messages: when enabled, a new external message supersedes the
// sender's pending needs_input runs. It does not switch the invocation
// path; every message goes through the handler either way.
func (s *Scheduler) WithHarnessEnabled(enabled bool) *Scheduler {
	s.harnessEnabled = enabled
	return s
}

// Run blocks, ticking every 1 s until ctx is canceled (spec §4.N). Every
// per-agent pipeline goroutine is tracked by an errgroup so shutdown
// waits for in-flight work to drain instead of abandoning it mid-file.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.spooler.Recover(); err != nil {
		return fmt.Errorf("scheduler: recover processing dir: %w", err)
	}
	s.logger.Info("scheduler started")

	eg, egCtx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.eg = eg
	s.mu.Unlock()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, draining agent pipelines")
			if err := eg.Wait(); err != nil {
				s.logger.Error("scheduler: pipeline drain error", "error", err)
			}
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(egCtx)
		}
	}
}

// tick lists incoming/, sorted by mtime, and claims+dispatches each file
// to its effective agent's pipeline (spec §4.N steps 1-2).
func (s *Scheduler) tick(ctx context.Context) {
	names, err := s.spooler.ListIncoming()
	if err != nil {
		s.logger.Error("scheduler: list incoming failed", "error", err)
		return
	}

	for _, name := range names {
		env, err := s.spooler.PeekIncoming(name)
		if err != nil {
			s.logger.Warn("scheduler: peek failed, skipping", "file", name, "error", err)
			continue
		}

		agentID := s.effectiveAgent(env)
		s.enqueueForAgent(ctx, agentID, name)
	}
}

// effectiveAgent resolves the pre-routed field, then an @agent/@team
// mention, then falls back to the default agent (spec §4.N: "Peek the
// file to determine its effective agentId").
func (s *Scheduler) effectiveAgent(env *store.MessageEnvelope) string {
	if env.AgentID != "" {
		return env.AgentID
	}
	if agentID, _, err := router.RouteWithTeam(env.Message, s.dir); err == nil && agentID != "" {
		return agentID
	}
	return s.dir.DefaultAgent()
}

// enqueueForAgent lazily starts a per-agent worker goroutine the first
// time it sees that agent, then hands the filename to its channel so
// same-agent messages process strictly sequentially.
func (s *Scheduler) enqueueForAgent(ctx context.Context, agentID, name string) {
	s.mu.Lock()
	ch, ok := s.agentQueues[agentID]
	if !ok {
		ch = make(chan string, 256)
		s.agentQueues[agentID] = ch
		s.eg.Go(func() error {
			s.runAgentPipeline(ctx, agentID, ch)
			return nil
		})
	}
	s.mu.Unlock()

	select {
	case ch <- name:
	default:
		s.logger.Warn("scheduler: agent queue full, will retry next tick", "agent", agentID)
	}
}

// runAgentPipeline processes one agent's claimed files strictly in
// order, never overlapping two messages for the same agent (spec §4.N:
// "per-agent sequential promise-chain dispatch, parallel across
// agents").
func (s *Scheduler) runAgentPipeline(ctx context.Context, agentID string, ch chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-ch:
			s.process(ctx, agentID, name)
		}
	}
}

const teammateWaitingTemplate = "[%d other teammate response(s) are still being processed, reply when you are ready]\n\n%s"

// process implements spec §4.N steps 1-10 for one claimed file.
func (s *Scheduler) process(ctx context.Context, agentID, name string) {
	if _, err := s.spooler.Claim(name); err != nil {
		// lost the race to another claimer (or file already gone); not an error
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: handler panicked, releasing for retry", "file", name, "panic", r)
			if err := s.spooler.Release(name); err != nil {
				s.logger.Error("scheduler: release after panic failed", "file", name, "error", err)
			}
		}
	}()

	env, err := s.spooler.ReadEnvelope(name)
	if err != nil {
		s.logger.Error("scheduler: read envelope failed, releasing", "file", name, "error", err)
		_ = s.spooler.Release(name)
		return
	}

	isInternal := env.ConversationID != ""

	routedAgent := agentID
	var teamID string
	if !isInternal {
		agent, team, rerr := router.RouteWithTeam(env.Message, s.dir)
		if rerr == router.ErrAmbiguousMention {
			// easter-egg path (spec §4.C): echo back unchanged, no run.
			s.writeOutgoing(env, env.Message)
			_ = s.spooler.Complete(name)
			return
		}
		if agent != "" {
			routedAgent = agent
		}
		teamID = team
	}

	if !isInternal && s.harnessEnabled {
		if superseded, serr := s.repo.SupersedeNeedsInput(ctx, env.Channel, env.SenderID, time.Now()); serr != nil {
			s.logger.Warn("scheduler: supersede needs_input failed", "error", serr)
		} else if len(superseded) > 0 {
			s.logger.Info("scheduler: superseded stale needs_input runs", "count", len(superseded))
		}
	}

	objective := env.Message
	var conv *conversation
	if isInternal {
		conv = s.lookupConversation(env.ConversationID)
		if conv != nil {
			conv.mu.Lock()
			siblings := conv.pending - 1
			conv.mu.Unlock()
			if siblings > 0 {
				objective = fmt.Sprintf(teammateWaitingTemplate, siblings, objective)
			}
		}
	} else if teamID != "" {
		conv = s.startConversation(env, teamID)
	}

	intent := classify.ClassifyIntent(objective)
	if !isInternal && env.Channel != "heartbeat" && intent != classify.IntentQuestion && env.SenderID != "" {
		s.enqueueAck(env)
	}

	outcome, herr := s.handler.Handle(ctx, harness.Input{
		Channel: env.Channel, Sender: env.Sender, SenderID: env.SenderID,
		ConversationID: env.ConversationID, MessageID: env.MessageID,
		FromAgent: env.FromAgent, AgentIDHint: routedAgent, Objective: objective,
	})
	responseText := ""
	if herr != nil {
		s.logger.Error("scheduler: harness failed, using canned error", "file", name, "error", herr)
		responseText = "Sorry, something went wrong while I was working on that. Please try again."
	} else {
		responseText = outcome.Text
	}

	if conv == nil {
		s.finalizeSingle(env, routedAgent, intent, responseText)
		_ = s.spooler.Complete(name)
		return
	}

	s.finalizeBranch(env, conv, routedAgent, responseText)
	_ = s.spooler.Complete(name)
}

// finalizeSingle implements spec §4.N step 8 for a non-team response:
// completion prefix, send_file extraction, long-response spill, write
// outgoing, done.
func (s *Scheduler) finalizeSingle(env *store.MessageEnvelope, agentID string, intent classify.Intent, text string) {
	text = maybePrependDone(text, intent)
	text, attachments := extractSendFiles(text)
	text, spillAttachment := s.spillIfLong(env.MessageID, text)
	if spillAttachment != "" {
		attachments = append(attachments, spillAttachment)
	}
	s.writeOutgoing(env, text, attachments...)
}

// finalizeBranch implements spec §4.N step 9: append this branch's
// response, extract teammate handoffs, enqueue them (unless the
// conversation has hit maxMessages), decrement pending, and — once
// pending reaches zero — aggregate every branch's response into exactly
// one outgoing envelope and delete the conversation record (spec §3:
// "conversation is destroyed iff pending==0").
func (s *Scheduler) finalizeBranch(env *store.MessageEnvelope, conv *conversation, agentID, text string) {
	team := s.teamFor(agentID)
	handoffs := router.ExtractHandoffs(text, agentID, team)

	cleanedText, fileTags := extractSendFiles(text)

	conv.mu.Lock()
	conv.responses = append(conv.responses, branchResponse{agentID: agentID, text: cleanedText})
	conv.attachments = append(conv.attachments, fileTags...)
	conv.totalMessages++

	var accepted []router.Handoff
	if conv.totalMessages < maxMessages {
		accepted = handoffs
	} else if len(handoffs) > 0 {
		s.logger.Warn("scheduler: conversation hit maxMessages, dropping teammate mentions",
			"conversation_id", env.ConversationID, "dropped", len(handoffs))
	}
	for range accepted {
		conv.pending++
		conv.mentionCounts[agentID]++
	}
	conv.pending--
	done := conv.pending <= 0
	responses := append([]branchResponse(nil), conv.responses...)
	attachments := append([]string(nil), conv.attachments...)
	origin := conversationOrigin{
		teamID: conv.teamID, channel: conv.channel, sender: conv.sender,
		senderID: conv.senderID, messageID: conv.messageID,
	}
	conv.mu.Unlock()

	for _, h := range accepted {
		internalEnv := &store.MessageEnvelope{
			Channel: "internal", Sender: agentID, SenderID: agentID,
			Message: h.Text, Timestamp: time.Now(), MessageID: uuid.NewString(),
			AgentID: h.Target, ConversationID: env.ConversationID, FromAgent: agentID,
		}
		if err := s.spooler.WriteInternal(env.ConversationID, h.Target, internalEnv); err != nil {
			s.logger.Error("scheduler: write handoff failed", "target", h.Target, "error", err)
		}
	}

	if !done {
		return
	}

	s.deleteConversation(env.ConversationID)

	aggregated := aggregateResponses(responses)
	s.appendChatTranscript(origin.teamID, origin.sender, aggregated)

	// Spec §4.N step 9 (team context) does not call for the step-8
	// "Done!" completion prefix — only the long-response spill applies
	// universally (spec §8 testable property).
	aggregated, spillAttachment := s.spillIfLong(origin.messageID, aggregated)
	if spillAttachment != "" {
		attachments = append(attachments, spillAttachment)
	}

	originEnv := &store.MessageEnvelope{
		Channel: origin.channel, Sender: origin.sender, SenderID: origin.senderID,
		MessageID: origin.messageID, Timestamp: time.Now(), ConversationID: env.ConversationID,
	}
	s.writeOutgoing(originEnv, aggregated, attachments...)
}

// aggregateResponses joins branch responses per spec §4.N step 9:
// "single branch → raw; multiple → '@<agent>: …' segments joined by
// '------'".
func aggregateResponses(responses []branchResponse) string {
	if len(responses) == 1 {
		return responses[0].text
	}
	segments := make([]string, 0, len(responses))
	for _, r := range responses {
		segments = append(segments, fmt.Sprintf("@%s: %s", r.agentID, r.text))
	}
	return strings.Join(segments, aggregationSep)
}

// startConversation mints a fresh Conversation for a new team-addressed
// external message (spec §3) with one open branch (the leader).
func (s *Scheduler) startConversation(env *store.MessageEnvelope, teamID string) *conversation {
	if env.ConversationID == "" {
		env.ConversationID = uuid.NewString()
	}
	conv := &conversation{
		teamID: teamID, channel: env.Channel, sender: env.Sender, senderID: env.SenderID,
		messageID: env.MessageID, pending: 1, mentionCounts: map[string]int{}, startedAt: time.Now(),
	}
	s.mu.Lock()
	s.conversations[env.ConversationID] = conv
	s.mu.Unlock()
	return conv
}

func (s *Scheduler) lookupConversation(conversationID string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[conversationID]
}

func (s *Scheduler) deleteConversation(conversationID string) {
	s.mu.Lock()
	delete(s.conversations, conversationID)
	s.mu.Unlock()
}

func (s *Scheduler) teamFor(agentID string) router.Team {
	if t, ok := s.dir.TeamFor(agentID); ok {
		return t
	}
	return router.Team{}
}

// enqueueAck sends an immediate urgent ack for a non-question external
// message with a known sender (spec §4.N step 6).
func (s *Scheduler) enqueueAck(env *store.MessageEnvelope) {
	if s.proactive == nil {
		return
	}
	ack := store.MessageEnvelope{
		Channel: env.Channel, Sender: env.Sender, SenderID: env.SenderID,
		Message: "On it, give me a moment.", Timestamp: time.Now(),
		MessageID: "ack_" + uuid.NewString(),
	}
	if err := s.proactive.Defer(ack, true); err != nil {
		s.logger.Warn("scheduler: enqueue ack failed", "error", err)
	}
}

func (s *Scheduler) writeOutgoing(env *store.MessageEnvelope, text string, attachmentPaths ...string) {
	reply := &store.MessageEnvelope{
		Channel: env.Channel, Sender: env.Sender, SenderID: env.SenderID,
		Message: text, Timestamp: time.Now(), MessageID: env.MessageID,
		ConversationID: env.ConversationID, OriginalMessage: env.Message,
		Files: attachmentPaths,
	}
	if err := s.spooler.WriteOutgoing(reply); err != nil {
		s.logger.Error("scheduler: write outgoing failed", "error", err)
		s.incrMetric(env.Channel, "outgoing.dropped")
		return
	}
	s.incrMetric(env.Channel, "outgoing.delivered")
}

// incrMetric best-effort increments a named counter (spec §6
// "response_loss_rate" is derived from outgoing.delivered/dropped);
// failures only get a debug log since metrics are advisory.
func (s *Scheduler) incrMetric(channel, name string) {
	if s.repo == nil {
		return
	}
	if err := s.repo.IncrMetric(context.Background(), name, 1, map[string]any{"channel": channel}); err != nil {
		s.logger.Debug("scheduler: incr metric failed", "metric", name, "error", err)
	}
}

var completionIndicatorRe = regexp.MustCompile(`(?i)^\s*(done|finished|completed|here'?s what|here is what|all set)\b`)

// maybePrependDone prepends "Done! Here's what happened:" to task-type
// responses that don't already start with a completion indicator (spec
// §4.N step 8).
func maybePrependDone(text string, intent classify.Intent) string {
	if intent == classify.IntentQuestion {
		return text
	}
	if completionIndicatorRe.MatchString(text) {
		return text
	}
	return "Done! Here's what happened:\n\n" + text
}

var sendFileRe = regexp.MustCompile(`\[send_file:\s*([^\]]+)\]`)

// extractSendFiles pulls every "[send_file: <path>]" tag out of text
// into an attachment list (spec §4.N step 8).
func extractSendFiles(text string) (string, []string) {
	matches := sendFileRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	var attachments []string
	for _, m := range matches {
		attachments = append(attachments, strings.TrimSpace(m[1]))
	}
	cleaned := sendFileRe.ReplaceAllString(text, "")
	return strings.TrimSpace(cleaned), attachments
}

// spillIfLong truncates text to maxOutgoingChars and writes the full
// text to a .md file under the attachment tree when it overflows (spec
// §8: "for every outgoing response whose text exceeds 4000 chars, the
// outgoing envelope's message length <= 4000+40 and a .md attachment
// exists in files[]").
func (s *Scheduler) spillIfLong(messageID, text string) (string, string) {
	if len(text) <= maxOutgoingChars || s.filesDir == "" {
		return text, ""
	}

	name := fmt.Sprintf("response_%s_%d.md", messageID, time.Now().UnixMilli())
	path := filepath.Join(s.filesDir, name)
	if err := os.MkdirAll(s.filesDir, 0o755); err != nil {
		s.logger.Error("scheduler: create files dir failed", "error", err)
		return text[:maxOutgoingChars], ""
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		s.logger.Error("scheduler: spill response failed", "error", err)
		return text[:maxOutgoingChars], ""
	}

	truncated := text[:maxOutgoingChars-len(truncationNotice)] + truncationNotice
	return truncated, path
}

const truncationNotice = "\n\n[response truncated, full text attached]"

func (s *Scheduler) chatFilePath(teamID string) string {
	if teamID == "" {
		teamID = "default"
	}
	return filepath.Join(s.chatDir, teamID, time.Now().UTC().Format("2006-01-02")+".md")
}

// appendChatTranscript saves the aggregated team response to the
// per-team, per-UTC-date Markdown chat transcript (spec §6:
// "chats/<teamId>/<utc-date>.md").
func (s *Scheduler) appendChatTranscript(teamID, sender, message string) {
	path := s.chatFilePath(teamID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error("scheduler: create chat dir failed", "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error("scheduler: open chat transcript failed", "error", err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("**%s** (%s): %s\n\n", sender, time.Now().UTC().Format("15:04:05"), message)
	if _, err := f.WriteString(line); err != nil {
		s.logger.Error("scheduler: write chat transcript failed", "error", err)
	}
}
