package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Account is the profile of the authenticated source-host user.
type Account struct {
	GitHubID    int64  `json:"github_id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
}

// RepositorySummary is the per-repository evidence collected during one sync
// pass. It is built once per pass and not mutated afterwards.
type RepositorySummary struct {
	GitHubRepoID  int64            `json:"github_repo_id"`
	Owner         string           `json:"owner"`
	Name          string           `json:"name"`
	Private       bool             `json:"private"`
	Description   string           `json:"description"`
	DefaultBranch string           `json:"default_branch"`
	Language      string           `json:"language"`
	Languages     map[string]int64 `json:"languages"`
	Topics        []string         `json:"topics"`
	PushedAt      time.Time        `json:"pushed_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Stars         int              `json:"stars"`
	Forks         int              `json:"forks"`
	OpenIssues    int              `json:"open_issues"`
	CommitSample  int              `json:"commit_sample"`

	// Deep-scan output; empty when the repository was outside the
	// deep-scan budget or the scan degraded to metadata only.
	ManifestSignals []string `json:"manifest_signals,omitempty"`
	ImportSignals   []string `json:"import_signals,omitempty"`
	TextBlob        string   `json:"-"`
}

// FullName returns the owner/name identity of the repository.
func (r RepositorySummary) FullName() string {
	return r.Owner + "/" + r.Name
}

// InferredSkill is one entry of the ranked inference output.
type InferredSkill struct {
	Skill string  `json:"skill"`
	Score float64 `json:"score"`
}

// SkillScore is the proficiency scorer's output for a single skill.
type SkillScore struct {
	Skill       string    `json:"skill"`
	Proficiency float64   `json:"proficiency"`
	Confidence  float64   `json:"confidence"`
	RepoCount   int       `json:"repo_count"`
	LastUsed    time.Time `json:"last_used"`
}

// SyncResult is everything one orchestrator pass produced.
type SyncResult struct {
	Account      *Account            `json:"account"`
	Repositories []RepositorySummary `json:"repositories"`
	Skills       []InferredSkill     `json:"skills"`
	TotalRepos   int                 `json:"total_repos"`
	DeepScanned  int                 `json:"deep_scanned"`
}

// Run and job statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"

	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
	JobStatusDead    = "dead"
)

// SyncRun is one row per sync attempt; append/update only.
type SyncRun struct {
	ID         uuid.UUID       `json:"id"`
	StudentID  string          `json:"student_id"`
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// QueueJob is a durable enrichment job. Only the worker holding the lease
// mutates it after creation.
type QueueJob struct {
	ID          uuid.UUID       `json:"id"`
	StudentID   string          `json:"student_id"`
	Provider    string          `json:"provider"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextRunAt   time.Time       `json:"next_run_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BackgroundSyncStatus is the process-local, poll-able sync state for one
// student. It is not persisted; a restart reads as "not in progress".
type BackgroundSyncStatus struct {
	InProgress bool       `json:"in_progress"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StudentSkillRecord is the persisted per-(student, skill) state.
type StudentSkillRecord struct {
	StudentID   string    `json:"student_id"`
	Skill       string    `json:"skill"`
	Proficiency float64   `json:"proficiency"`
	Confidence  float64   `json:"confidence"`
	UsageCount  int       `json:"usage_count"`
	LastUsed    time.Time `json:"last_used"`
}

// ProjectRecord mirrors the projects table, keyed by the host's repo id.
type ProjectRecord struct {
	ID           int64     `json:"id"`
	GitHubRepoID int64     `json:"github_repo_id"`
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Language     string    `json:"language"`
	Stars        int       `json:"stars"`
	Forks        int       `json:"forks"`
	PushedAt     time.Time `json:"pushed_at"`
}

// Graph node types used by the intelligence pipeline.
const (
	NodeTypeSkill      = "skill"
	NodeTypeTechnology = "technology"
	NodeTypeConcept    = "concept"
)

// GraphNode is a canonical entity in the skills, technologies or concepts
// table.
type GraphNode struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"-"`
}

// EntityMention links a source reference to a graph node.
type EntityMention struct {
	NodeID    int64     `json:"node_id"`
	NodeType  string    `json:"node_type"`
	Provider  string    `json:"provider"`
	SourceRef string    `json:"source_ref"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeEdge is a co-occurrence edge between two graph nodes. Weight is
// incremented each time the pair co-occurs.
type KnowledgeEdge struct {
	SourceID   int64  `json:"source_id"`
	SourceType string `json:"source_type"`
	TargetID   int64  `json:"target_id"`
	TargetType string `json:"target_type"`
	Relation   string `json:"relation"`
	Weight     int    `json:"weight"`
}

// IntelligenceRun is the observability record for one pipeline pass,
// mirroring SyncRun.
type IntelligenceRun struct {
	ID         uuid.UUID  `json:"id"`
	Provider   string     `json:"provider"`
	SourceRef  string     `json:"source_ref"`
	Status     string     `json:"status"`
	Message    string     `json:"message"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Credential sources, in resolution order.
const (
	CredentialSourceOAuth       = "oauth"
	CredentialSourceIntegration = "integration"
	CredentialSourceStatic      = "static"
)
