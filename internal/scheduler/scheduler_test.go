package scheduler

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyagi/tinyagi/internal/classify"
)

func TestAggregateResponsesSingleBranchIsRaw(t *testing.T) {
	got := aggregateResponses([]branchResponse{{agentID: "alpha", text: "all done"}})
	if got != "all done" {
		t.Errorf("aggregateResponses(single) = %q, want %q", got, "all done")
	}
}

func TestAggregateResponsesMultipleBranchesJoinedWithSeparator(t *testing.T) {
	got := aggregateResponses([]branchResponse{
		{agentID: "alpha", text: "did the research"},
		{agentID: "beta", text: "wrote the draft"},
	})
	want := "@alpha: did the research" + aggregationSep + "@beta: wrote the draft"
	if got != want {
		t.Errorf("aggregateResponses(multi) = %q, want %q", got, want)
	}
}

func TestMaybePrependDoneSkipsQuestions(t *testing.T) {
	text := "The capital of France is Paris."
	got := maybePrependDone(text, classify.IntentQuestion)
	if got != text {
		t.Errorf("maybePrependDone(question) = %q, want unchanged", got)
	}
}

func TestMaybePrependDoneSkipsExistingCompletionIndicator(t *testing.T) {
	text := "Done! I deployed the service."
	got := maybePrependDone(text, classify.IntentEngineeringTask)
	if got != text {
		t.Errorf("maybePrependDone(already done) = %q, want unchanged", got)
	}
}

func TestMaybePrependDonePrependsForTaskTypes(t *testing.T) {
	text := "I ran the migration and verified the schema."
	got := maybePrependDone(text, classify.IntentEngineeringTask)
	if !strings.HasPrefix(got, "Done! Here's what happened:") {
		t.Errorf("maybePrependDone(task) = %q, want a Done! prefix", got)
	}
	if !strings.Contains(got, text) {
		t.Errorf("maybePrependDone(task) = %q, want original text preserved", got)
	}
}

func TestExtractSendFilesNoTags(t *testing.T) {
	text, files := extractSendFiles("just a plain response")
	if text != "just a plain response" || files != nil {
		t.Errorf("extractSendFiles(plain) = (%q, %v), want unchanged with no files", text, files)
	}
}

func TestExtractSendFilesSingleTag(t *testing.T) {
	text, files := extractSendFiles("Here's your report. [send_file: /tmp/report.pdf]")
	if text != "Here's your report." {
		t.Errorf("extractSendFiles text = %q", text)
	}
	if len(files) != 1 || files[0] != "/tmp/report.pdf" {
		t.Errorf("extractSendFiles files = %v, want [/tmp/report.pdf]", files)
	}
}

func TestExtractSendFilesMultipleTags(t *testing.T) {
	text, files := extractSendFiles("[send_file: /a.txt] done [send_file: /b.txt]")
	if strings.Contains(text, "send_file") {
		t.Errorf("extractSendFiles text = %q, want tags removed", text)
	}
	if len(files) != 2 || files[0] != "/a.txt" || files[1] != "/b.txt" {
		t.Errorf("extractSendFiles files = %v, want [/a.txt /b.txt]", files)
	}
}

func TestSpillIfLongShortTextUnchanged(t *testing.T) {
	s := New(nil, nil, nil, nil, t.TempDir(), slog.Default()).WithFilesDir(t.TempDir())
	text, path := s.spillIfLong("m1", "a short response")
	if text != "a short response" || path != "" {
		t.Errorf("spillIfLong(short) = (%q, %q), want unchanged with no attachment", text, path)
	}
}

func TestSpillIfLongTruncatesAndWritesAttachment(t *testing.T) {
	filesDir := t.TempDir()
	s := New(nil, nil, nil, nil, t.TempDir(), slog.Default()).WithFilesDir(filesDir)

	long := strings.Repeat("x", maxOutgoingChars+500)
	text, path := s.spillIfLong("m2", long)

	if len(text) > maxOutgoingChars+40 {
		t.Errorf("spilled message length = %d, want <= %d (spec §8 long-response spill property)", len(text), maxOutgoingChars+40)
	}
	if path == "" {
		t.Fatal("expected a non-empty attachment path for a long response")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	if string(data) != long {
		t.Error("expected the attachment to contain the full untruncated text")
	}
	if filepath.Dir(path) != filesDir {
		t.Errorf("attachment written to %s, want under %s", path, filesDir)
	}
}

func TestChatFilePathDefaultsTeamID(t *testing.T) {
	s := New(nil, nil, nil, nil, "/chats", slog.Default())
	path := s.chatFilePath("")
	if !strings.HasPrefix(path, filepath.Join("/chats", "default")) {
		t.Errorf("chatFilePath(\"\") = %q, want under /chats/default", path)
	}
}
