// Package memory implements the regex-driven memory ingest/retrieval
// service (spec §4.J): extractors for preferences, workflows,
// task-states, and corrections (stored as confirmed_facts); no rule
// extracts projects or contacts; within-ingest dedup; upsert by a stable
// hash id; and a confidence/recency-weighted retrieval scorer. Grounded
// on the teacher's internal/tools/policy.go static-table idiom,
// generalized to ordered regex extractors instead of a tool allowlist.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tinyagi/tinyagi/internal/store"
)

// extraction is one candidate fact pulled from a message before dedup.
type extraction struct {
	category   store.MemoryCategory
	key        string
	value      string
	confidence float64
}

type extractorRule struct {
	pattern    *regexp.Regexp
	category   store.MemoryCategory
	confidence float64
}

var extractorRules = []extractorRule{
	{regexp.MustCompile(`(?i)i prefer\s+(.+)`), store.MemoryPreferences, 0.8},
	{regexp.MustCompile(`(?i)please always\s+(.+)`), store.MemoryPreferences, 0.85},
	{regexp.MustCompile(`(?i)this is my workflow[:\s]+(.+)`), store.MemoryWorkflows, 0.75},
	{regexp.MustCompile(`(?i)remember that\s+(.+)`), store.MemoryTaskStates, 0.7},
	{regexp.MustCompile(`(?i)actually[,]?\s+(.+)`), store.MemoryConfirmedFacts, 0.65},
}

// Extract runs every extractor rule over text, returning one candidate
// per match (spec §4.J "Ingest").
func Extract(text string) []extraction {
	var out []extraction
	for _, rule := range extractorRules {
		for _, m := range rule.pattern.FindAllStringSubmatch(text, -1) {
			value := strings.TrimSpace(m[1])
			if value == "" {
				continue
			}
			out = append(out, extraction{
				category:   rule.category,
				key:        deriveKey(value),
				value:      value,
				confidence: rule.confidence,
			})
		}
	}
	return out
}

// deriveKey picks a short stable key from an extracted value's leading
// words, used as the natural-key "key" component alongside category.
func deriveKey(value string) string {
	fields := strings.Fields(strings.ToLower(value))
	n := 4
	if len(fields) < n {
		n = len(fields)
	}
	return strings.Join(fields[:n], "-")
}

// dedupe keeps, per (category, key, lower(value)), only the
// highest-confidence hit (spec §4.J: "Dedup within a single ingest").
func dedupe(extractions []extraction) []extraction {
	best := map[string]extraction{}
	for _, e := range extractions {
		k := string(e.category) + "|" + e.key + "|" + strings.ToLower(e.value)
		if cur, ok := best[k]; !ok || e.confidence > cur.confidence {
			best[k] = e
		}
	}
	out := make([]extraction, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	return out
}

// RecordID computes the stable id = hash(user|category|key) (spec §4.J).
func RecordID(userID string, category store.MemoryCategory, key string) string {
	sum := sha256.Sum256([]byte(userID + "|" + string(category) + "|" + key))
	return hex.EncodeToString(sum[:])
}

// Service implements harness.MemoryService plus retrieval/summary.
type Service struct {
	repo    store.Memory
	rawDir  string
}

// New builds a Service.
func New(repo store.Memory, rawDir string) *Service {
	return &Service{repo: repo, rawDir: rawDir}
}

// Ingest extracts, dedups, and upserts memory facts from (objective,
// output) (spec §4.J, harness.MemoryService).
func (s *Service) Ingest(ctx context.Context, userID, channel, objective, output, runID string) error {
	extractions := dedupe(append(Extract(objective), Extract(output)...))

	now := time.Now()
	for _, e := range extractions {
		rec := &store.MemoryRecord{
			RecordID:    RecordID(userID, e.category, e.key),
			UserID:      userID,
			Category:    e.category,
			Key:         e.key,
			Value:       e.value,
			Confidence:  e.confidence,
			SourceRunID: runID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.UpsertMemory(ctx, rec); err != nil {
			return fmt.Errorf("memory: upsert %s/%s: %w", e.category, e.key, err)
		}
	}
	return s.appendRaw(userID, channel, objective, output, now)
}

// scored pairs a record with its retrieval score for sorting.
type scored struct {
	rec   *store.MemoryRecord
	score float64
}

// Retrieve scores every memory record for userID against query by
// (2*tokenHits) + confidence + updatedAt/1e13 and returns the top N
// (default 12, capped at 20) as a context block (spec §4.J).
func (s *Service) Retrieve(ctx context.Context, userID, query string, n int) (string, error) {
	if n <= 0 {
		n = 12
	}
	if n > 20 {
		n = 20
	}

	records, err := s.repo.ListMemory(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("memory: retrieve: %w", err)
	}

	tokens := strings.Fields(strings.ToLower(query))
	var scoredRecs []scored
	for _, rec := range records {
		hits := tokenHits(tokens, rec.Value)
		score := 2*float64(hits) + rec.Confidence + float64(rec.UpdatedAt.UnixNano())/1e13
		scoredRecs = append(scoredRecs, scored{rec: rec, score: score})
	}

	sort.Slice(scoredRecs, func(i, j int) bool { return scoredRecs[i].score > scoredRecs[j].score })
	if len(scoredRecs) > n {
		scoredRecs = scoredRecs[:n]
	}

	var b strings.Builder
	for _, sr := range scoredRecs {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", sr.rec.Category, sr.rec.Key, sr.rec.Value)
	}
	return b.String(), nil
}

func tokenHits(tokens []string, value string) int {
	lower := strings.ToLower(value)
	hits := 0
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return hits
}

func (s *Service) appendRaw(userID, channel, objective, output string, ts time.Time) error {
	if s.rawDir == "" {
		return nil
	}
	return appendJSONL(s.rawDir, ts, map[string]any{
		"user_id":   userID,
		"channel":   channel,
		"objective": objective,
		"output":    output,
		"ts":        ts.Format(time.RFC3339),
	})
}

// dailyPartitionPath returns the YYYY/MM/DD raw-event partition path for ts.
func dailyPartitionPath(root string, ts time.Time) string {
	return root + "/" + ts.Format("2006") + "/" + ts.Format("01") + "/" + ts.Format("02") + "/events-" + strconv.FormatInt(ts.Unix()/86400, 10) + ".jsonl"
}
