// Package statehome resolves the process-wide state directory used by
// every other package to derive its paths. It is resolved once at startup
// and is injectable for tests (spec §9 "Process-wide state home").
package statehome

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	canonicalDirName = ".tinyagi"
	legacyDirName    = ".tinyclaw"
)

// Home is the resolved state directory plus the well-known subpaths
// derived from it (spec §6 queue file layout).
type Home struct {
	Root string
}

// Resolve determines the state home following the precedence:
//  1. a repo-local ".tinyagi" or ".tinyclaw" directory next to the binary
//  2. "~/.tinyagi", migrating from "~/.tinyclaw" if present
func Resolve() (*Home, error) {
	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Dir(exe)
		if p := filepath.Join(dir, canonicalDirName); isDir(p) {
			return &Home{Root: p}, nil
		}
		if p := filepath.Join(dir, legacyDirName); isDir(p) {
			return &Home{Root: p}, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state home: %w", err)
	}

	canonical := filepath.Join(home, canonicalDirName)
	legacy := filepath.Join(home, legacyDirName)

	if isDir(canonical) {
		return &Home{Root: canonical}, nil
	}

	if isDir(legacy) {
		if err := migrateLegacy(legacy, canonical); err != nil {
			return nil, fmt.Errorf("migrate legacy state home: %w", err)
		}
		return &Home{Root: canonical}, nil
	}

	if err := os.MkdirAll(canonical, 0o755); err != nil {
		return nil, fmt.Errorf("create state home: %w", err)
	}
	return &Home{Root: canonical}, nil
}

// New builds a Home rooted at an arbitrary directory — used by tests to
// inject an isolated state home.
func New(root string) *Home {
	return &Home{Root: root}
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

// migrateLegacy copies the legacy directory tree to the canonical location,
// verifies parity by file count, then replaces the legacy directory with a
// symlink to the canonical one (spec §6).
func migrateLegacy(legacy, canonical string) error {
	srcCount, err := countFiles(legacy)
	if err != nil {
		return err
	}

	if err := copyTree(legacy, canonical); err != nil {
		return err
	}

	dstCount, err := countFiles(canonical)
	if err != nil {
		return err
	}
	if dstCount < srcCount {
		return fmt.Errorf("parity check failed: copied %d files, source has %d", dstCount, srcCount)
	}

	if err := os.RemoveAll(legacy); err != nil {
		return fmt.Errorf("remove legacy dir: %w", err)
	}
	if err := os.Symlink(canonical, legacy); err != nil {
		// Symlinking is best-effort (e.g. unsupported on the filesystem);
		// the migration itself already succeeded.
		return nil
	}
	return nil
}

func countFiles(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	return n, err
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// Queue directories.
func (h *Home) QueueIncoming() string   { return filepath.Join(h.Root, "queue", "incoming") }
func (h *Home) QueueProcessing() string { return filepath.Join(h.Root, "queue", "processing") }
func (h *Home) QueueOutgoing() string   { return filepath.Join(h.Root, "queue", "outgoing") }
func (h *Home) Logs() string            { return filepath.Join(h.Root, "logs") }
func (h *Home) Chats() string           { return filepath.Join(h.Root, "chats") }
func (h *Home) Events() string          { return filepath.Join(h.Root, "events") }
func (h *Home) Files() string           { return filepath.Join(h.Root, "files") }
func (h *Home) HarnessDir() string      { return filepath.Join(h.Root, "harness") }
func (h *Home) HarnessDB() string       { return filepath.Join(h.Root, "harness", "state.db") }
func (h *Home) ProactiveDeferred() string {
	return filepath.Join(h.Root, "harness", "proactive-deferred.jsonl")
}
func (h *Home) ProactiveState() string {
	return filepath.Join(h.Root, "harness", "proactive-state.json")
}
func (h *Home) BrowserAuditDir() string {
	return filepath.Join(h.Root, "harness", "browser-audit")
}
func (h *Home) BrowserProfileMirror() string {
	return filepath.Join(h.Root, "harness", "browser-profile-mirror")
}
func (h *Home) MemoryRawDir() string   { return filepath.Join(h.Root, "memory", "raw") }
func (h *Home) MemoryDailyDir() string { return filepath.Join(h.Root, "memory", "daily") }
func (h *Home) SkillsDir() string      { return filepath.Join(h.Root, "skills") }
func (h *Home) SettingsPath() string   { return filepath.Join(h.Root, "settings.json") }
func (h *Home) PairingPath() string    { return filepath.Join(h.Root, "pairing.json") }

// EnsureDirs creates every directory the queue file layout names.
func (h *Home) EnsureDirs() error {
	dirs := []string{
		h.QueueIncoming(), h.QueueProcessing(), h.QueueOutgoing(),
		h.Logs(), h.Chats(), h.Events(), h.Files(),
		h.HarnessDir(), h.BrowserAuditDir(), h.BrowserProfileMirror(),
		h.MemoryRawDir(), h.MemoryDailyDir(), h.SkillsDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
