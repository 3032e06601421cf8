package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/store"
)

type rawEvent struct {
	UserID    string `json:"user_id"`
	Objective string `json:"objective"`
	Output    string `json:"output"`
	TS        string `json:"ts"`
	Channel   string `json:"channel,omitempty"`
}

func appendJSONL(root string, ts time.Time, entry map[string]any) error {
	path := dailyPartitionPath(root, ts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: create raw dir: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("memory: marshal raw event: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open raw event file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("memory: append raw event: %w", err)
	}
	return nil
}

// summaryWriter is the subset of store.Skills-like upsert behavior the
// daily summary needs for its output row; reusing store.Skills here
// would be a domain mismatch, so the summary is instead written as a
// MemoryRecord in the task_states category keyed by the date.
type summaryWriter interface {
	UpsertMemory(ctx context.Context, rec *store.MemoryRecord) error
}

// Summarize collects raw JSONL memory events for a UTC date, groups
// them by channel, extracts the last 20 requests, writes a Markdown
// summary file under dailyDir, and upserts one summary row (spec §4.J
// "Daily summary"). When channelFilter is non-empty, only that
// channel's events are included, so a per-channel proactive digest
// target gets its own summary instead of every channel's activity.
func (s *Service) Summarize(ctx context.Context, date time.Time, dailyDir, channelFilter string, writer summaryWriter) (string, error) {
	path := dailyPartitionPath(s.rawDir, date)
	events, err := readJSONL(path)
	if err != nil {
		return "", fmt.Errorf("memory: read raw events for %s: %w", date.Format("2006-01-02"), err)
	}

	byChannel := map[string][]rawEvent{}
	for _, ev := range events {
		if channelFilter != "" && ev.Channel != channelFilter {
			continue
		}
		byChannel[ev.Channel] = append(byChannel[ev.Channel], ev)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Daily summary — %s\n\n", date.Format("2006-01-02"))
	for channel, evs := range byChannel {
		sort.Slice(evs, func(i, j int) bool { return evs[i].TS < evs[j].TS })
		if len(evs) > 20 {
			evs = evs[len(evs)-20:]
		}
		fmt.Fprintf(&b, "## %s\n", orDefault(channel, "(unspecified channel)"))
		for _, ev := range evs {
			fmt.Fprintf(&b, "- %s\n", ev.Objective)
		}
		b.WriteString("\n")
	}

	summaryKey := "daily-summary-" + date.Format("2006-01-02")
	fileName := date.Format("2006-01-02")
	if channelFilter != "" {
		summaryKey += "-" + channelFilter
		fileName += "-" + channelFilter
	}

	if dailyDir != "" {
		if err := os.MkdirAll(dailyDir, 0o755); err != nil {
			return "", fmt.Errorf("memory: create daily dir: %w", err)
		}
		summaryPath := filepath.Join(dailyDir, fileName+".md")
		if err := os.WriteFile(summaryPath, []byte(b.String()), 0o644); err != nil {
			return "", fmt.Errorf("memory: write summary file: %w", err)
		}
	}

	if writer != nil {
		if err := writer.UpsertMemory(ctx, &store.MemoryRecord{
			RecordID:    RecordID("system", store.MemoryTaskStates, summaryKey),
			UserID:      "system",
			Category:    store.MemoryTaskStates,
			Key:         summaryKey,
			Value:       b.String(),
			Confidence:  1,
			SourceRunID: uuid.NewString(),
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}); err != nil {
			return "", fmt.Errorf("memory: upsert summary row: %w", err)
		}
	}

	return b.String(), nil
}

func readJSONL(path string) ([]rawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []rawEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev rawEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, scanner.Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
