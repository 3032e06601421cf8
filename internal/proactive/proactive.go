// Package proactive implements the proactive scheduler (spec §4.M):
// every 60 s it flushes the deferred outbox outside quiet hours, fires
// the daily digest once per target per day, and nudges blocked runs.
// Grounded on the teacher's internal/channels/manager.go dispatch-loop
// style (an always-on goroutine consuming a queue and forwarding
// outbound messages) and golang.org/x/sync/singleflight for the
// reentrancy guard the teacher doesn't need (its dispatch loop has no
// periodic tick to guard against overlap).
package proactive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/store"
)

const tickInterval = 60 * time.Second

// QuietHours is a wrap-around [start, end) local-time window.
type QuietHours struct {
	Start string // "HH:MM"
	End   string // "HH:MM"
}

// Within reports whether t's local time-of-day falls inside the
// wrap-around window (spec §4.M: "configurable wrap-around window
// [start, end) in local time").
func (q QuietHours) Within(t time.Time) bool {
	start, errS := parseHHMM(q.Start)
	end, errE := parseHHMM(q.End)
	if errS != nil || errE != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now < end
	}
	// wrap-around, e.g. 22:00 -> 08:00
	return now >= start || now < end
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// State is the durable reentrancy/digest bookkeeping persisted to
// harness/proactive-state.json (spec §6).
type State struct {
	LastDigestDate   string          `json:"last_digest_date"`
	DigestSentTo     map[string]bool `json:"digest_sent_to"`
	OutreachCount    map[string]int  `json:"outreach_count"`
	LastOutreachAt   map[string]string `json:"last_outreach_at"`
}

func newState() *State {
	return &State{DigestSentTo: map[string]bool{}, OutreachCount: map[string]int{}, LastOutreachAt: map[string]string{}}
}

// Scheduler runs the 60 s proactive tick.
type Scheduler struct {
	repo         store.Repository
	spooler      *queue.Spooler
	deferredPath string
	statePath    string
	quietHours   QuietHours
	digestTime   string
	logger       *slog.Logger
	sf           singleflight.Group

	digestFn func(ctx context.Context, channel, senderID string) (string, error)
}

// New builds a Scheduler.
func New(repo store.Repository, spooler *queue.Spooler, deferredPath, statePath string, quietHours QuietHours, digestTime string, logger *slog.Logger, digestFn func(ctx context.Context, channel, senderID string) (string, error)) *Scheduler {
	return &Scheduler{
		repo: repo, spooler: spooler, deferredPath: deferredPath, statePath: statePath,
		quietHours: quietHours, digestTime: digestTime, logger: logger, digestFn: digestFn,
	}
}

// Run blocks, ticking every 60 s until ctx is canceled. Each tick is
// guarded by a singleflight key so overlapping ticks (e.g. a slow
// previous tick) never run concurrently (spec §5: "the proactive tick
// is guarded by a reentrancy flag so ticks never overlap").
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, _ = s.sf.Do("tick", func() (any, error) {
				s.tick(ctx)
				return nil, nil
			})
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	if err := s.flushDeferred(now); err != nil {
		s.logger.Error("proactive: flush deferred outbox failed", "error", err)
	}

	st, err := s.loadState()
	if err != nil {
		s.logger.Error("proactive: load state failed", "error", err)
		st = newState()
	}

	if err := s.maybeDigest(ctx, now, st); err != nil {
		s.logger.Error("proactive: digest failed", "error", err)
	}

	if err := s.blockedOutreach(ctx, now, st); err != nil {
		s.logger.Error("proactive: blocked outreach failed", "error", err)
	}

	if err := s.saveState(st); err != nil {
		s.logger.Error("proactive: save state failed", "error", err)
	}
}

type deferredMessage struct {
	Envelope store.MessageEnvelope `json:"envelope"`
	Urgent   bool                  `json:"urgent"`
}

// flushDeferred moves every buffered deferred message into the
// outgoing queue when outside quiet hours, then truncates the buffer
// (spec §4.M step 1). Urgent messages always flush regardless of quiet
// hours (spec §4.M: "urgent messages ... bypass quiet hours").
func (s *Scheduler) flushDeferred(now time.Time) error {
	f, err := os.Open(s.deferredPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open deferred outbox: %w", err)
	}

	var remaining []deferredMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	outsideQuiet := !s.quietHours.Within(now)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var dm deferredMessage
		if err := json.Unmarshal([]byte(line), &dm); err != nil {
			continue
		}
		if dm.Urgent || outsideQuiet {
			if err := s.spooler.WriteOutgoing(&dm.Envelope); err != nil {
				remaining = append(remaining, dm)
			}
		} else {
			remaining = append(remaining, dm)
		}
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return err
	}

	return s.rewriteDeferred(remaining)
}

func (s *Scheduler) rewriteDeferred(remaining []deferredMessage) error {
	tmp := s.deferredPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create deferred tmp file: %w", err)
	}
	for _, dm := range remaining {
		data, err := json.Marshal(dm)
		if err != nil {
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.deferredPath)
}

// Defer appends a message to the deferred outbox instead of delivering
// it immediately, used by callers that want a message to wait out quiet
// hours.
func (s *Scheduler) Defer(env store.MessageEnvelope, urgent bool) error {
	data, err := json.Marshal(deferredMessage{Envelope: env, Urgent: urgent})
	if err != nil {
		return fmt.Errorf("marshal deferred message: %w", err)
	}
	f, err := os.OpenFile(s.deferredPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open deferred outbox: %w", err)
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// digestCron converts the configured "HH:MM" digest time into a
// standard 5-field cron expression so gronx can decide whether the
// current tick is due. A tick is due only when its minute matches the
// expression, so a day on which no tick lands in that minute gets no
// digest.
func digestCron(hhmm string) (string, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return "", fmt.Errorf("invalid digest time %q: %w", hhmm, err)
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

// maybeDigest fires the daily digest once per target per day when the
// configured digest-time cron expression is due (spec §4.M step 2).
func (s *Scheduler) maybeDigest(ctx context.Context, now time.Time, st *State) error {
	today := now.Format("2006-01-02")
	expr, err := digestCron(s.digestTime)
	if err != nil {
		return err
	}
	due, err := gronx.New().IsDue(expr, now)
	if err != nil {
		return fmt.Errorf("evaluate digest schedule: %w", err)
	}
	if !due {
		return nil
	}
	if st.LastDigestDate != today {
		st.LastDigestDate = today
		st.DigestSentTo = map[string]bool{}
	}

	targets, err := s.digestTargets(ctx)
	if err != nil {
		return fmt.Errorf("enumerate digest targets: %w", err)
	}

	for _, t := range targets {
		key := t.channel + "|" + t.senderID
		if st.DigestSentTo[key] {
			continue
		}
		summary, err := s.digestFn(ctx, t.channel, t.senderID)
		if err != nil {
			s.logger.Error("proactive: build digest failed", "channel", t.channel, "sender_id", t.senderID, "error", err)
			continue
		}
		env := store.MessageEnvelope{
			Channel: t.channel, Sender: t.senderID, SenderID: t.senderID,
			Message: summary, Timestamp: now, MessageID: uuid.NewString(),
		}
		if err := s.Defer(env, false); err != nil {
			s.logger.Error("proactive: enqueue digest failed", "error", err)
			continue
		}
		st.DigestSentTo[key] = true
	}
	return nil
}

type digestTarget struct {
	channel  string
	senderID string
}

const digestLookback = 24 * time.Hour

// digestTargets enumerates distinct channel+senderID with recent
// activity (spec §4.M step 2) by looking at runs created in the last
// 24h, regardless of how those runs ended.
func (s *Scheduler) digestTargets(ctx context.Context) ([]digestTarget, error) {
	senders, err := s.repo.ListActiveSenders(ctx, time.Now().Add(-digestLookback))
	if err != nil {
		return nil, err
	}
	out := make([]digestTarget, 0, len(senders))
	for _, k := range senders {
		out = append(out, digestTarget{channel: k.Channel, senderID: k.SenderID})
	}
	return out, nil
}

const (
	blockedMinAge        = 10 * time.Minute
	blockedMaxAge        = 24 * time.Hour
	blockedOutreachCooldown = 4 * time.Hour
	blockedOutreachMax   = 3
)

// blockedOutreach nudges runs stuck in needs_input/awaiting_approval
// older than 10 min with no newer sibling message, skipping runs older
// than 24h, capped at 3 prior outreach events at least 4h apart (spec
// §4.M step 3).
func (s *Scheduler) blockedOutreach(ctx context.Context, now time.Time, st *State) error {
	runs, err := s.repo.ListBlockedRunsForOutreach(ctx, blockedMinAge)
	if err != nil {
		return fmt.Errorf("list blocked runs: %w", err)
	}

	for _, r := range runs {
		if now.Sub(r.CreatedAt) > blockedMaxAge {
			continue
		}
		key := r.RunID
		if st.OutreachCount[key] >= blockedOutreachMax {
			continue
		}
		if lastStr, ok := st.LastOutreachAt[key]; ok {
			if last, err := time.Parse(time.RFC3339, lastStr); err == nil && now.Sub(last) < blockedOutreachCooldown {
				continue
			}
		}

		env := store.MessageEnvelope{
			Channel: r.Channel, Sender: r.Sender, SenderID: r.SenderID,
			Message:   fmt.Sprintf("Checking in — I'm still waiting on your input for: %s", r.Objective),
			Timestamp: now, MessageID: uuid.NewString(),
		}
		if err := s.Defer(env, true); err != nil {
			s.logger.Error("proactive: enqueue outreach failed", "run_id", r.RunID, "error", err)
			continue
		}

		st.OutreachCount[key]++
		st.LastOutreachAt[key] = now.Format(time.RFC3339)

		_ = s.repo.AppendEvent(ctx, &store.TaskEvent{
			EventID: uuid.NewString(), RunID: r.RunID, Kind: "proactive_outreach",
			Payload: map[string]any{"count": st.OutreachCount[key]}, CreatedAt: now,
		})
	}
	return nil
}

func (s *Scheduler) loadState() (*State, error) {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return newState(), nil
		}
		return nil, err
	}
	st := newState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Scheduler) saveState(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}
