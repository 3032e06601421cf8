package store

import (
	"context"
	"time"
)

// Repository is the single-writer durable store every component composes
// against (spec §4.A). Concrete backends (store/pg) implement it; callers
// depend only on this interface, matching the teacher's store.Stores /
// store.SessionStore swappable-backend idiom (internal/store/file vs
// internal/store/pg in vanducng-goclaw).
type Repository interface {
	Runs
	Events
	Memory
	Permissions
	Tools
	Browser
	Pending
	Metrics
	Skills

	Close() error
}

// Runs covers TaskRun CRUD plus the two bespoke supersede/outreach
// queries spec §4.A names explicitly.
type Runs interface {
	CreateRun(ctx context.Context, run *TaskRun) error
	UpdateRun(ctx context.Context, run *TaskRun) error
	GetRun(ctx context.Context, runID string) (*TaskRun, error)

	// SupersedeNeedsInput marks every needs_input run for (channel,
	// senderID) older than cutoff as rejected, returning their ids.
	SupersedeNeedsInput(ctx context.Context, channel, senderID string, cutoff time.Time) ([]string, error)

	// ListBlockedRunsForOutreach returns the newest blocked
	// (needs_input|awaiting_approval) run per (channel, senderID) older
	// than minAge, excluding any (channel, senderID) with a newer run.
	ListBlockedRunsForOutreach(ctx context.Context, minAge time.Duration) ([]*TaskRun, error)

	// ListRecentRuns returns the most recent runs, newest first, capped
	// at limit, for CLI/operator inspection.
	ListRecentRuns(ctx context.Context, limit int) ([]*TaskRun, error)

	// ListActiveSenders returns distinct (channel, senderID) pairs for
	// every run created since cutoff, regardless of status, for the
	// daily digest's "recent activity" targeting (spec §4.M step 2).
	ListActiveSenders(ctx context.Context, since time.Time) ([]SenderKey, error)
}

// SenderKey identifies one channel+sender pair.
type SenderKey struct {
	Channel  string
	SenderID string
}

// Events is the append-only TaskEvent/TaskStep log.
type Events interface {
	AppendEvent(ctx context.Context, ev *TaskEvent) error
	AppendStep(ctx context.Context, step *TaskStep) error
	ListEvents(ctx context.Context, runID string) ([]*TaskEvent, error)
	ListSteps(ctx context.Context, runID string) ([]*TaskStep, error)
}

// Memory covers MemoryRecord upsert-by-natural-key and retrieval.
type Memory interface {
	UpsertMemory(ctx context.Context, rec *MemoryRecord) error
	ListMemory(ctx context.Context, userID string) ([]*MemoryRecord, error)
	// ForgetMemory deletes every record for userID whose key or value
	// contains topic (case-insensitive), returning the count removed,
	// for `memory forget <userId> <topic>` (spec §6).
	ForgetMemory(ctx context.Context, userID, topic string) (int, error)
}

// Permissions covers Permission lifecycle rows.
type Permissions interface {
	GetActivePermission(ctx context.Context, userID, subject, action string) (*Permission, error)
	CreatePendingPermission(ctx context.Context, p *Permission) error
	DecidePermission(ctx context.Context, requestID string, approve bool) error

	// ListPermissions returns every permission row, optionally filtered
	// to one userID (empty string lists all), for the `permission list`
	// CLI surface (spec §6).
	ListPermissions(ctx context.Context, userID string) ([]*Permission, error)
	// GrantPermission upserts an active permission row for the
	// `permission grant` CLI surface (spec §6).
	GrantPermission(ctx context.Context, p *Permission) error
	// RevokePermission marks a permission row revoked by its id, for the
	// `permission revoke` CLI surface (spec §6).
	RevokePermission(ctx context.Context, permissionID string) error
}

// Tools covers ToolRegistry rows.
type Tools interface {
	GetOrRegisterTool(ctx context.Context, name, source string, trust ToolTrustClass) (*ToolRegistry, error)
	// ListTools returns every registered tool row for `tools list`.
	ListTools(ctx context.Context) ([]*ToolRegistry, error)
	// SetToolStatus updates a tool's approval status for `tools
	// approve`/`tools block`.
	SetToolStatus(ctx context.Context, toolID string, status ToolStatus) error
}

// Browser covers the browser-automation row family.
type Browser interface {
	CreateBrowserSession(ctx context.Context, s *BrowserSession) error
	UpdateBrowserSession(ctx context.Context, s *BrowserSession) error
	CreateBrowserAction(ctx context.Context, a *BrowserAction) error
	UpdateBrowserAction(ctx context.Context, a *BrowserAction) error
	CreateBrowserApproval(ctx context.Context, a *BrowserApproval) error
	DecideBrowserApproval(ctx context.Context, requestID string, approve bool) error
	CreateBrowserAudit(ctx context.Context, a *BrowserAudit) error
	UpsertBrowserTab(ctx context.Context, t *BrowserTab) error
	GetLatestTabForRun(ctx context.Context, runID string) (*BrowserTab, error)
	ListAuditsForTab(ctx context.Context, tabID string) ([]*BrowserAudit, error)

	// ListBrowserSessions returns every session row for `browser
	// sessions`.
	ListBrowserSessions(ctx context.Context) ([]*BrowserSession, error)
	// ListBrowserTabs returns every tab row for a run (or every tab if
	// runID is empty) for `browser tabs [runId]`.
	ListBrowserTabs(ctx context.Context, runID string) ([]*BrowserTab, error)
	// ListBrowserApprovals returns pending/decided approval requests,
	// optionally filtered to the runs owned by userID, for `browser
	// approvals [userId]`.
	ListBrowserApprovals(ctx context.Context, userID string) ([]*BrowserApproval, error)
}

// Pending covers ChannelPendingMessage durability.
type Pending interface {
	PutPendingMessage(ctx context.Context, m *ChannelPendingMessage) error
	GetPendingMessage(ctx context.Context, messageID string) (*ChannelPendingMessage, error)
	DeletePendingMessage(ctx context.Context, messageID string) error
	PurgeExpiredPending(ctx context.Context, now time.Time) (int, error)
}

// Metrics covers named-counter snapshots plus the append-only event log.
type Metrics interface {
	IncrMetric(ctx context.Context, name string, delta float64, metadata map[string]any) error
	GetMetric(ctx context.Context, name string) (float64, error)
	// ListMetrics returns every named counter's current value for the
	// `metrics` CLI surface (spec §6).
	ListMetrics(ctx context.Context) (map[string]float64, error)
}

// Skills covers Skill rows and their immutable version history.
type Skills interface {
	UpsertSkill(ctx context.Context, s *Skill) error
	GetSkillByName(ctx context.Context, name string) (*Skill, error)
	GetSkillByID(ctx context.Context, skillID string) (*Skill, error)
	AddSkillVersion(ctx context.Context, v *SkillVersion) error
	ListSkillVersions(ctx context.Context, skillID string) ([]*SkillVersion, error)
	SetSkillContentPath(ctx context.Context, skillID, contentPath string) error
	// ListSkills returns every skill row for `skills list`.
	ListSkills(ctx context.Context) ([]*Skill, error)
}
