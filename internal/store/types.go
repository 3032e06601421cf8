// Package store defines the durable data model owned by the relational
// repository (spec §3) and the Repository interface every component
// composes against. The concrete implementation lives in store/pg,
// grounded on the teacher's internal/store/pg package (vanducng-goclaw).
package store

import "time"

// TaskStatus is the lifecycle state of a TaskRun.
type TaskStatus string

const (
	StatusQueued           TaskStatus = "queued"
	StatusInProgress       TaskStatus = "in_progress"
	StatusNeedsInput       TaskStatus = "needs_input"
	StatusNeedsRevision    TaskStatus = "needs_revision"
	StatusVerified         TaskStatus = "verified"
	StatusRejected         TaskStatus = "rejected"
	StatusAwaitingApproval TaskStatus = "awaiting_approval"
	StatusSent             TaskStatus = "sent"
	StatusFailed           TaskStatus = "failed"
)

// VerifierOutcome is the result a verifier callback returns for one
// iteration of the harness loop.
type VerifierOutcome string

const (
	OutcomePass         VerifierOutcome = "pass"
	OutcomeMinorFix     VerifierOutcome = "minor_fix"
	OutcomeCriticalFail VerifierOutcome = "critical_fail"
	OutcomeAbstain      VerifierOutcome = "abstain"
)

// RiskLevel is the outcome of the risk classifier (spec §4.E).
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Route is the outcome of the task router (spec §4.E).
type Route string

const (
	RouteBrowser Route = "browser"
	RouteTooling Route = "tooling"
	RouteMemory  Route = "memory"
	RouteAgent   Route = "agent"
)

// Attachment is a single file reference carried on a MessageEnvelope.
type Attachment struct {
	Path     string `json:"path"`
	MimeType string `json:"mimeType,omitempty"`
}

// MessageEnvelope is the on-disk shape of one queue file (spec §3, §6).
// Field names match the wire contract in spec §6 ("Message envelope
// (incoming/outgoing JSON)") exactly — other components and external
// channel adapters round-trip these files byte-for-byte.
type MessageEnvelope struct {
	Channel         string       `json:"channel"`
	Sender          string       `json:"sender"`
	SenderID        string       `json:"senderId,omitempty"`
	Message         string       `json:"message"`
	Timestamp       time.Time    `json:"timestamp"`
	MessageID       string       `json:"messageId"`
	AgentID         string       `json:"agent,omitempty"`
	ConversationID  string       `json:"conversationId,omitempty"`
	FromAgent       string       `json:"fromAgent,omitempty"`
	Files           []string     `json:"files,omitempty"`
	OriginalMessage string       `json:"originalMessage,omitempty"`
	Attachments     []Attachment `json:"-"`
}

// TaskRun is the durable row tracking one harness invocation (spec §3).
type TaskRun struct {
	RunID           string
	TaskID          string
	Channel         string
	Sender          string
	SenderID        string
	ConversationID  string
	BranchKey       string
	Objective       string
	RiskLevel       RiskLevel
	Status          TaskStatus
	AssignedAgent   string
	LoopIteration   int
	MaxIterations   int
	VerifierOutcome VerifierOutcome
	ResultText      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TaskEvent is one append-only audit row (spec §3).
type TaskEvent struct {
	EventID   string
	RunID     string
	Kind      string
	Payload   map[string]any
	CreatedAt time.Time
}

// TaskStep is one append-only loop-iteration row (generate/verify/revise).
type TaskStep struct {
	StepID    string
	RunID     string
	Iteration int
	Kind      string // "generate" | "verify" | "revise"
	Content   string
	Outcome   VerifierOutcome
	CreatedAt time.Time
}

// MemoryCategory classifies a MemoryRecord (spec §3).
type MemoryCategory string

const (
	MemoryPreferences    MemoryCategory = "preferences"
	MemoryProjects       MemoryCategory = "projects"
	MemoryWorkflows      MemoryCategory = "workflows"
	MemoryContacts       MemoryCategory = "contacts"
	MemoryTaskStates     MemoryCategory = "task_states"
	MemoryConfirmedFacts MemoryCategory = "confirmed_facts"
)

// MemoryRecord is one durable user-memory fact (spec §3).
type MemoryRecord struct {
	RecordID    string
	UserID      string
	Category    MemoryCategory
	Key         string
	Value       string
	Confidence  float64
	SourceRunID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PermissionStatus is the lifecycle state of a Permission row.
type PermissionStatus string

const (
	PermissionActive  PermissionStatus = "active"
	PermissionRevoked PermissionStatus = "revoked"
	PermissionPending PermissionStatus = "pending"
)

// Permission gates a (user, subject) tool/capability pairing (spec §3).
type Permission struct {
	PermissionID string
	UserID       string
	Subject      string
	Action       string
	Resource     string
	Status       PermissionStatus
	RequestID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ToolTrustClass is how well-known a registered tool binary is.
type ToolTrustClass string

const (
	TrustCurated   ToolTrustClass = "curated"
	TrustMainstream ToolTrustClass = "mainstream"
	TrustUnknown   ToolTrustClass = "unknown"
)

// ToolStatus is the approval state of a ToolRegistry row.
type ToolStatus string

const (
	ToolApproved ToolStatus = "approved"
	ToolBlocked  ToolStatus = "blocked"
	ToolPending  ToolStatus = "pending"
)

// ToolRegistry is one row tracking a seen tool binary (spec §3).
type ToolRegistry struct {
	ToolID      string
	Name        string
	Source      string
	TrustClass  ToolTrustClass
	Status      ToolStatus
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BrowserSession tracks one browser-automation session lifecycle.
type BrowserSession struct {
	SessionID   string
	RunID       string
	ProfilePath string
	DebuggerURL string
	Status      string // "active" | "closed" | "error"
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BrowserAction is one planned/executed step within a session.
type BrowserAction struct {
	ActionID          string
	SessionID         string
	RunID             string
	Seq               int
	Kind              string
	Selector          string
	Value             string
	Risk              RiskLevel
	RequiresApproval  bool
	Status            string // "pending" | "completed" | "failed" | "needs_approval"
	CreatedAt         time.Time
}

// BrowserApproval is a human approval decision for a critical action.
type BrowserApproval struct {
	ApprovalID string
	ActionID   string
	RequestID  string
	Decision   string // "" | "approved" | "denied"
	CreatedAt  time.Time
	DecidedAt  *time.Time
}

// BrowserAudit is one before/after evidence row for an action.
type BrowserAudit struct {
	AuditID           string
	ActionID          string
	BeforeScreenshot  string
	AfterScreenshot   string
	SelectorTraceJSON string
	CreatedAt         time.Time
}

// BrowserTab tracks which run owns a live browser tab.
type BrowserTab struct {
	TabID     string
	RunID     string
	SessionID string
	Status    string // "active" | "error" | "released"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChannelPendingMessage lets outgoing delivery survive process restarts
// after the in-memory live-handle map is gone (spec §3).
type ChannelPendingMessage struct {
	MessageID string
	Channel   string
	Sender    string
	SenderID  string
	ChatRef   string
	ReplyRef  string
	ExpiresAt time.Time
}

// MetricEvent is one append-only delta row (spec §3).
type MetricEvent struct {
	EventID   string
	Name      string
	Delta     float64
	Metadata  map[string]any
	CreatedAt time.Time
}

// SkillStatus is the lifecycle state of a Skill.
type SkillStatus string

const (
	SkillDraft    SkillStatus = "draft"
	SkillActive   SkillStatus = "active"
	SkillDisabled SkillStatus = "disabled"
)

// Skill is a versioned, auto-draftable Markdown procedure (spec §3).
type Skill struct {
	SkillID     string
	Name        string
	Status      SkillStatus
	ContentPath string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SkillVersion is one immutable historical revision of a Skill.
type SkillVersion struct {
	SkillID     string
	Version     int
	ContentPath string
	CreatedAt   time.Time
}
