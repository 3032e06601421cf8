package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Harness.Autonomy != "normal" {
		t.Errorf("Autonomy = %q, want %q (default)", cfg.Harness.Autonomy, "normal")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TINYAGI_HARNESS_AUTONOMY", "strict")
	t.Setenv("TINYAGI_HARNESS_ENABLED", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Harness.Autonomy != "strict" {
		t.Errorf("Autonomy = %q, want %q (env override)", cfg.Harness.Autonomy, "strict")
	}
	if cfg.Harness.Enabled {
		t.Error("expected Enabled=false from env override")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	cfg := Default()
	cfg.Harness.DigestTime = "07:15"
	cfg.Harness.QuietHours.Start = "23:00"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Harness.DigestTime != "07:15" {
		t.Errorf("DigestTime = %q, want %q", loaded.Harness.DigestTime, "07:15")
	}
	if loaded.Harness.QuietHours.Start != "23:00" {
		t.Errorf("QuietHours.Start = %q, want %q", loaded.Harness.QuietHours.Start, "23:00")
	}
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "settings.json" {
		t.Errorf("expected exactly settings.json in %s, got %+v", dir, entries)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := ExpandHome("~/tinyagi"); got != filepath.Join(home, "tinyagi") {
		t.Errorf("ExpandHome(~/tinyagi) = %q, want %q", got, filepath.Join(home, "tinyagi"))
	}
	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q, want %q", got, home)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q, want unchanged", got)
	}
}

func TestConfigHashStableForSameContent(t *testing.T) {
	a := Default()
	b := Default()
	if a.Hash() != b.Hash() {
		t.Error("expected identical default configs to hash the same")
	}
	b.Harness.Autonomy = "strict"
	if a.Hash() == b.Hash() {
		t.Error("expected a changed config to hash differently")
	}
}
