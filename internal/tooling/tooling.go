// Package tooling implements the approval-gated subprocess executor
// (spec §4.H): extract a candidate shell-free command from an agent's
// output, sanitize and tokenize it, register/check permissions, and
// run it with a bounded, timed-out capture. Grounded on the teacher's
// internal/tools/policy.go allow/deny-table idiom, generalized from a
// tool-name allowlist to a full extract → sanitize → permission-check →
// execute pipeline, and on internal/tools/delegate.go's permission-gate
// pattern (per-user active/pending Permission rows).
package tooling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"golang.org/x/time/rate"

	"github.com/tinyagi/tinyagi/internal/store"
)

// allowlistedTools is the set of argv[0] binaries the executor will
// ever run (spec §4.H step 1).
var allowlistedTools = map[string]bool{
	"npm": true, "npx": true, "pip": true, "pip3": true,
	"brew": true, "git": true, "docker": true, "pnpm": true, "yarn": true,
}

var shellMetaRe = regexp.MustCompile(`[;&|` + "`" + `]`)
var fallbackCommandRe = regexp.MustCompile(`(?m)^\s*(?:[-*]\s*|\d+[.)]\s*)?(npm|npx|pip3?|brew|git|docker|pnpm|yarn)\s+\S.*$`)

// ErrNoCommand is returned when no candidate command could be extracted.
var ErrNoCommand = errors.New("tooling: no candidate command found")

// ErrRejected is returned when sanitization rejects the command.
type ErrRejected struct{ Reason string }

func (e ErrRejected) Error() string { return "tooling: rejected command: " + e.Reason }

const (
	captureLimit   = 24 * 1024
	defaultTimeout = 120 * time.Second
)

// execRate caps how often the executor will actually spawn a
// subprocess, independent of how fast agents propose commands (spec
// §4.H: a single runaway agent must not be able to fork-bomb the host
// via repeated `docker`/`npm` invocations).
const execRate = 2 // commands per second, burst 4

// Executor implements harness.ToolingExecutor.
type Executor struct {
	repo    store.Repository
	limiter *rate.Limiter
}

// New builds an Executor.
func New(repo store.Repository) *Executor {
	return &Executor{repo: repo, limiter: rate.NewLimiter(rate.Limit(execRate), execRate*2)}
}

// ExtractCommand scans candidateOutput line by line (stripping
// list-item prefixes) for a line beginning with an allowlisted tool,
// falling back to the first regex match anywhere in the text (spec
// §4.H step 1).
func ExtractCommand(candidateOutput string) (string, error) {
	for _, line := range strings.Split(candidateOutput, "\n") {
		stripped := stripListPrefix(line)
		fields := strings.Fields(stripped)
		if len(fields) == 0 {
			continue
		}
		if allowlistedTools[fields[0]] {
			return stripped, nil
		}
	}

	if m := fallbackCommandRe.FindString(candidateOutput); m != "" {
		return strings.TrimSpace(stripListPrefix(m)), nil
	}

	return "", ErrNoCommand
}

func stripListPrefix(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimPrefix(line, "* ")
	for i, r := range line {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == ')' {
			if i > 0 {
				return strings.TrimSpace(line[i+1:])
			}
		}
		break
	}
	return line
}

// Sanitize rejects empty commands, shell metacharacters, sudo, rm -rf,
// and non-allowlisted argv[0], and tokenizes quote-aware (spec §4.H
// step 2).
func Sanitize(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrRejected{Reason: "empty command"}
	}
	if shellMetaRe.MatchString(command) {
		return nil, ErrRejected{Reason: "shell metacharacters present"}
	}
	lower := strings.ToLower(command)
	if strings.Contains(lower, "sudo") {
		return nil, ErrRejected{Reason: "sudo is not permitted"}
	}
	if strings.Contains(lower, "rm -rf") || strings.Contains(lower, "rm  -rf") {
		return nil, ErrRejected{Reason: "rm -rf is not permitted"}
	}

	tokens, err := tokenize(command)
	if err != nil {
		return nil, ErrRejected{Reason: err.Error()}
	}
	if len(tokens) == 0 || !allowlistedTools[tokens[0]] {
		return nil, ErrRejected{Reason: "argv[0] is not allowlisted"}
	}
	return tokens, nil
}

func tokenize(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := rune(0)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote != 0 {
		return nil, errors.New("unterminated quote")
	}
	flush()
	return tokens, nil
}

// ExecResult is the outcome of one tool execution.
type ExecResult struct {
	ExitCode int
	Duration time.Duration
	Output   string
}

// Execute implements the full spec §4.H pipeline and the
// harness.ToolingExecutor interface.
func (e *Executor) Execute(ctx context.Context, runID, userID, objective, candidateOutput string) (string, error) {
	command, err := ExtractCommand(candidateOutput)
	if err != nil {
		return "", err
	}
	tokens, err := Sanitize(command)
	if err != nil {
		return "", err
	}

	trust := classifyTrust(tokens[0])
	if _, err := e.repo.GetOrRegisterTool(ctx, tokens[0], "invoker-extracted", trust); err != nil {
		return "", fmt.Errorf("tooling: register tool: %w", err)
	}

	perm, err := e.repo.GetActivePermission(ctx, userID, tokens[0], "execute")
	if err != nil {
		return "", fmt.Errorf("tooling: check permission: %w", err)
	}
	if perm == nil {
		requestID := "perm_" + uuid.NewString()
		if err := e.repo.CreatePendingPermission(ctx, &store.Permission{
			PermissionID: uuid.NewString(),
			UserID:       userID,
			Subject:      tokens[0],
			Action:       "execute",
			Resource:     command,
			Status:       store.PermissionPending,
			RequestID:    requestID,
		}); err != nil {
			return "", fmt.Errorf("tooling: create pending permission: %w", err)
		}
		return fmt.Sprintf("needs_approval: run `permission grant %s %s execute` (request %s) before I can run: %s",
			userID, tokens[0], requestID, command), nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("tooling: rate limit wait: %w", err)
	}

	_ = e.repo.IncrMetric(ctx, "tooling.execute_start", 1, map[string]any{"run_id": runID, "tool": tokens[0]})

	result, execErr := run(ctx, tokens)

	if execErr != nil {
		_ = e.repo.IncrMetric(ctx, "tooling.execute_failed", 1, map[string]any{"run_id": runID, "tool": tokens[0]})
		return "", fmt.Errorf("tooling: execute %s: %w", command, execErr)
	}
	_ = e.repo.IncrMetric(ctx, "tooling.execute_success", 1, map[string]any{"run_id": runID, "tool": tokens[0]})

	return fmt.Sprintf("Exit code: %d (ran `%s`, %s):\n%s", result.ExitCode, command, result.Duration, result.Output), nil
}

func classifyTrust(name string) store.ToolTrustClass {
	switch name {
	case "npm", "pip", "pip3", "git", "docker":
		return store.TrustCurated
	case "npx", "pnpm", "yarn", "brew":
		return store.TrustMainstream
	default:
		return store.TrustUnknown
	}
}

// run spawns tokens with no shell, inherited env, a 24 KiB bounded
// capture ring, and a 120 s timeout that SIGTERMs on expiry (spec §4.H
// step 5).
func run(ctx context.Context, tokens []string) (ExecResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, tokens[0], tokens[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	var buf boundedBuffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
		err = nil
	}

	return ExecResult{ExitCode: exitCode, Duration: duration, Output: runewidth.Truncate(buf.String(), 4000, "...(truncated for display)")}, err
}

// boundedBuffer is a ring capture: it keeps the most recent captureLimit
// bytes, dropping the oldest bytes once the limit is exceeded (spec §4.H
// step 5: "bounded output capture (24 KiB ring)").
type boundedBuffer struct {
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.buf.Write(p)
	if over := b.buf.Len() - captureLimit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return b.buf.String() }
