package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tinyagi/tinyagi/internal/store"
)

type fakeMemoryRepo struct {
	byID map[string]*store.MemoryRecord
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{byID: map[string]*store.MemoryRecord{}}
}

func (f *fakeMemoryRepo) UpsertMemory(ctx context.Context, rec *store.MemoryRecord) error {
	f.byID[rec.RecordID] = rec
	return nil
}

func (f *fakeMemoryRepo) ListMemory(ctx context.Context, userID string) ([]*store.MemoryRecord, error) {
	var out []*store.MemoryRecord
	for _, rec := range f.byID {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCount    int
		wantCategory store.MemoryCategory
	}{
		{name: "preference", text: "I prefer dark mode everywhere", wantCount: 1, wantCategory: store.MemoryPreferences},
		{name: "always-do preference", text: "please always CC my manager", wantCount: 1, wantCategory: store.MemoryPreferences},
		{name: "workflow", text: "this is my workflow: open the ticket, then branch", wantCount: 1, wantCategory: store.MemoryWorkflows},
		{name: "task state", text: "remember that the deploy is paused for review", wantCount: 1, wantCategory: store.MemoryTaskStates},
		{name: "correction", text: "actually, use the staging database instead", wantCount: 1, wantCategory: store.MemoryConfirmedFacts},
		{name: "no match", text: "how's the weather today", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			if len(got) != tt.wantCount {
				t.Fatalf("Extract(%q) = %v, want %d extractions", tt.text, got, tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].category != tt.wantCategory {
				t.Errorf("Extract(%q) category = %v, want %v", tt.text, got[0].category, tt.wantCategory)
			}
		})
	}
}

func TestDedupeKeepsHighestConfidence(t *testing.T) {
	extractions := []extraction{
		{category: store.MemoryPreferences, key: "dark-mode", value: "dark mode", confidence: 0.5},
		{category: store.MemoryPreferences, key: "dark-mode", value: "dark mode", confidence: 0.9},
	}
	got := dedupe(extractions)
	if len(got) != 1 {
		t.Fatalf("dedupe() = %v, want exactly one survivor", got)
	}
	if got[0].confidence != 0.9 {
		t.Errorf("dedupe() kept confidence %v, want 0.9 (the higher one)", got[0].confidence)
	}
}

func TestRecordIDIsStableAndDistinguishesInputs(t *testing.T) {
	a := RecordID("user1", store.MemoryPreferences, "dark-mode")
	b := RecordID("user1", store.MemoryPreferences, "dark-mode")
	if a != b {
		t.Errorf("RecordID() not stable: %q != %q", a, b)
	}
	c := RecordID("user2", store.MemoryPreferences, "dark-mode")
	if a == c {
		t.Errorf("RecordID() did not distinguish different users")
	}
}

func TestServiceIngestAndRetrieve(t *testing.T) {
	repo := newFakeMemoryRepo()
	svc := New(repo, "")

	ctx := context.Background()
	if err := svc.Ingest(ctx, "user1", "chat", "I prefer dark mode", "", "run1"); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if err := svc.Ingest(ctx, "user1", "chat", "", "remember that the release is frozen", "run2"); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	got, err := svc.Retrieve(ctx, "user1", "dark mode", 0)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if got == "" {
		t.Fatal("Retrieve() returned empty context block")
	}
	if !strings.Contains(got, "dark mode") {
		t.Errorf("Retrieve() = %q, want it to mention the matching record", got)
	}
}

func TestTokenHits(t *testing.T) {
	if hits := tokenHits([]string{"dark", "mode"}, "I prefer dark mode"); hits != 2 {
		t.Errorf("tokenHits() = %d, want 2", hits)
	}
	if hits := tokenHits([]string{"light"}, "I prefer dark mode"); hits != 0 {
		t.Errorf("tokenHits() = %d, want 0", hits)
	}
}

func TestDailyPartitionPath(t *testing.T) {
	ts := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	got := dailyPartitionPath("/root/mem", ts)
	want := "/root/mem/2026/03/05/events-" + "" // only checked via substrings below
	_ = want
	if !containsAll(got, "/root/mem/2026/03/05/events-") {
		t.Errorf("dailyPartitionPath() = %q, want it to contain the YYYY/MM/DD partition prefix", got)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !stringsContains(s, sub) {
			return false
		}
	}
	return true
}

func stringsContains(s, sub string) bool {
	return len(s) >= len(sub) && (sub == "" || indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
