package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads settings.json from path, falling back to Default() if the
// file does not exist yet, then applies TINYAGI_* environment overrides.
// Mirrors the teacher's config.Load (internal/config/config_load.go),
// including its use of json5 so the file can carry comments.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save marshals cfg to JSON and writes it atomically: write to a temp
// file in the same directory, fsync, then rename over the target. This
// upgrades the teacher's plain os.WriteFile(path, data, 0600) (see
// config_load.go Save) so a reader of settings.json — the CLI, a
// concurrently running process — can never observe a partially written
// file.
func Save(path string, cfg *Config) error {
	cfg.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settings-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename config file into place: %w", err)
	}
	return nil
}

// Hash returns the sha256 of the marshaled config, so two configs can be
// compared for identical content.
func (c *Config) Hash() string {
	c.RLock()
	data, _ := json.Marshal(c)
	c.RUnlock()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// applyEnvOverrides reads TINYAGI_* environment variables on top of
// whatever was loaded from disk, following the teacher's envStr/envBool
// pattern (config_load.go applyEnvOverrides).
func applyEnvOverrides(cfg *Config) {
	envStr("TINYAGI_HARNESS_AUTONOMY", &cfg.Harness.Autonomy)
	envStr("TINYAGI_HARNESS_DIGEST_TIME", &cfg.Harness.DigestTime)
	envStr("TINYAGI_HARNESS_QUIET_HOURS_START", &cfg.Harness.QuietHours.Start)
	envStr("TINYAGI_HARNESS_QUIET_HOURS_END", &cfg.Harness.QuietHours.End)
	envBool("TINYAGI_HARNESS_ENABLED", &cfg.Harness.Enabled)
	envBool("TINYAGI_HARNESS_VERIFIER_FAIL_CLOSED", &cfg.Harness.VerifierFailClosed)

	envBool("TINYAGI_BROWSER_ENABLED", &cfg.Harness.Browser.Enabled)
	envStr("TINYAGI_BROWSER_PROVIDER", &cfg.Harness.Browser.Provider)
	envStr("TINYAGI_BROWSER_PROFILE_PATH", &cfg.Harness.Browser.ProfilePath)
	envStr("TINYAGI_BROWSER_PROFILE_DIRECTORY", &cfg.Harness.Browser.ProfileDirectory)
	envStr("TINYAGI_BROWSER_DEBUGGER_URL", &cfg.Harness.Browser.DebuggerURL)
	envStr("TINYAGI_BROWSER_MCP_CHANNEL", &cfg.Harness.Browser.MCPChannel)
	envStr("TINYAGI_BROWSER_BROKER_URL", &cfg.Harness.Browser.BrokerURL)
	envBool("TINYAGI_BROWSER_OPEN_DOMAIN_ACCESS", &cfg.Harness.Browser.OpenDomainAccess)
	envBool("TINYAGI_BROWSER_HARD_STOP_PAYMENTS", &cfg.Harness.Browser.HardStopPayments)
	envBool("TINYAGI_BROWSER_USE_CLAUDE_CHROME", &cfg.Harness.Browser.UseClaudeChrome)

	envBool("TINYAGI_WHATSAPP_SELF_COMMAND_ONLY", &cfg.Channels.WhatsApp.SelfCommandOnly)
	envStr("TINYAGI_WHATSAPP_SELF_COMMAND_PREFIX", &cfg.Channels.WhatsApp.SelfCommandPrefix)
	envBool("TINYAGI_WHATSAPP_REQUIRE_SELF_CHAT", &cfg.Channels.WhatsApp.RequireSelfChat)

	envStr("TINYAGI_POSTGRES_DSN", &cfg.Database.PostgresDSN)

	if ports := os.Getenv("TINYAGI_BROWSER_DEBUGGER_PORTS"); ports != "" {
		cfg.Harness.Browser.DebuggerPorts = parseIntList(ports)
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err == nil {
		*dst = b
	}
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ExpandHome replaces a leading "~" in path with the user's home
// directory, matching the teacher's config.ExpandHome.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
