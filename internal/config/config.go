// Package config defines the settings.json schema for tinyagi and
// provides atomic load/save, matching the teacher's config package shape
// (internal/config/config.go + config_load.go in vanducng-goclaw) but
// re-targeted at the harness/queue/browser/channel settings this spec
// requires.
package config

import "sync"

// Config is the root settings.json document.
type Config struct {
	mu sync.RWMutex `json:"-"`

	Harness  HarnessConfig  `json:"harness"`
	Channels ChannelsConfig `json:"channels"`
	Agents   map[string]AgentSpec `json:"agents"`
	Database DatabaseConfig `json:"database"`
}

// HarnessConfig controls the harness loop, autonomy level, quiet hours,
// digest schedule, and browser automation settings (spec §6 "Relevant
// configuration keys").
type HarnessConfig struct {
	Enabled            bool          `json:"enabled"`
	Autonomy           string        `json:"autonomy"` // "low" | "normal" | "strict"
	QuietHours         QuietHours    `json:"quiet_hours"`
	DigestTime         string        `json:"digest_time"` // "HH:MM" local time
	Browser            BrowserConfig `json:"browser"`
	VerifierFailClosed bool          `json:"verifier_fail_closed"` // escape hatch from spec's Open Question
}

// QuietHours is a wrap-around [start, end) local-time window (spec §4.M).
type QuietHours struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
}

// BrowserConfig configures the browser executor (spec §4.I).
type BrowserConfig struct {
	Enabled           bool     `json:"enabled"`
	Provider          string   `json:"provider"` // "auto" | "cdp" | "broker" | "mcp"
	ProfilePath       string   `json:"profile_path"`
	ProfileDirectory  string   `json:"profile_directory"`
	DebuggerURL       string   `json:"debugger_url"`
	DebuggerPorts     []int    `json:"debugger_ports"`
	MCPChannel        string   `json:"mcp_channel"`
	OpenDomainAccess  bool     `json:"open_domain_access"`
	HardStopPayments  bool     `json:"hard_stop_payments"`
	UseClaudeChrome   bool     `json:"use_claude_chrome"`
	BrokerURL         string   `json:"broker_url"`
}

// ChannelsConfig holds per-channel adapter configuration. Only the
// pieces relevant to the queue/pending contract (spec §1 "only their
// queue/pending contracts are specified") live here; the adapters
// themselves are external collaborators.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig is the one channel-specific settings block the spec
// names explicitly.
type WhatsAppConfig struct {
	SelfCommandOnly   bool   `json:"self_command_only"`
	SelfCommandPrefix string `json:"self_command_prefix"`
	RequireSelfChat   bool   `json:"require_self_chat"`
}

// AgentSpec describes one model-runner agent the invoker can spawn
// (spec §4.D). Family A is one-shot + continuation-flag; Family B is a
// framed JSON event stream.
type AgentSpec struct {
	Family            string   `json:"family"` // "A" or "B"
	Binary            string   `json:"binary"`
	Model             string   `json:"model"`
	FallbackModel     string   `json:"fallback_model"`
	Workspace         string   `json:"workspace"`
	ExtraArgs         []string `json:"extra_args"`
	IsTeamLeader      bool     `json:"is_team_leader"`
	TeamID            string   `json:"team_id"`
	UseClaudeChromeOverride bool `json:"-"`
}

// DatabaseConfig points at the relational repository's backing store.
type DatabaseConfig struct {
	PostgresDSN string `json:"postgres_dsn"`
}

// Default returns a Config populated with sensible defaults, mirroring
// the teacher's config.Default().
func Default() *Config {
	return &Config{
		Harness: HarnessConfig{
			Enabled:  true,
			Autonomy: "normal",
			QuietHours: QuietHours{
				Start: "22:00",
				End:   "08:00",
			},
			DigestTime: "08:30",
			Browser: BrowserConfig{
				Enabled:          true,
				Provider:         "auto",
				HardStopPayments: true,
			},
		},
		Agents: map[string]AgentSpec{
			"default": {
				Family: "B",
				Binary: "agent-runner",
			},
		},
	}
}

// Lock / Unlock expose the config's mutex for callers that need to read
// or mutate several fields atomically (teacher idiom: config.go keeps a
// private sync.RWMutex guarding concurrent CLI + gateway access).
func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }
