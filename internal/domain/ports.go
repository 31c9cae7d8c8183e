package domain

import "context"

// UnitParser turns the text of one source file into its top-level units.
type UnitParser interface {
	Parse(ctx context.Context, path string, src []byte) ([]SourceUnit, error)
}

// TextGenerator is the external text-generation collaborator. Its output is
// untrusted and is always re-parsed before it reaches a project.
type TextGenerator interface {
	Generate(ctx context.Context, context, instructions string) (string, error)
}

// KnowledgeChunk is one retrievable passage of the rule knowledge base.
type KnowledgeChunk struct {
	Source string  `json:"source"`
	RuleID string  `json:"rule_id,omitempty"`
	Text   string  `json:"text"`
	Score  float64 `json:"score,omitempty"`
}

// RuleDoc is the part of a knowledge-base document bound to a rule id.
type RuleDoc struct {
	RuleID        string   `json:"rule_id"`
	Title         string   `json:"title,omitempty"`
	Severity      Severity `json:"severity,omitempty"`
	Disabled      bool     `json:"disabled,omitempty"`
	BusinessTerms []string `json:"business_terms,omitempty"`
	Rationale     string   `json:"rationale"`
	Source        string   `json:"source"`
}

// KnowledgeBase is the read-only rule documentation store.
type KnowledgeBase interface {
	RuleDocs() []RuleDoc
	Retrieve(query string, k int) []KnowledgeChunk
}

// ProjectLoader reads a project from a directory or an archive.
type ProjectLoader interface {
	LoadDir(ctx context.Context, root string) (Project, error)
	LoadZip(ctx context.Context, name string, data []byte) (Project, error)
}

// ConfigLoader loads configuration for a project directory.
type ConfigLoader interface {
	Load(projectPath string) (Config, error)
}

// OutputWriter persists the fixed files of a run.
type OutputWriter interface {
	Write(ctx context.Context, files map[string][]byte) error
}

// RunHistory records one summary per run.
type RunHistory interface {
	Record(summary RunSummary) error
	List(project string, limit int) ([]RunSummary, error)
}

// GitInfo reports version-control information about a directory.
type GitInfo interface {
	IsGitRepo(path string) bool
	CommitHash(path string) (string, error)
}

// Metrics receives pipeline counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RunFinished(success bool, elapsedSeconds float64)
	ViolationDetected(ruleID string)
	FixResult(outcome Outcome)
	GenerationAttempt(result string, elapsedSeconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RunFinished(bool, float64)         {}
func (NopMetrics) ViolationDetected(string)          {}
func (NopMetrics) FixResult(Outcome)                 {}
func (NopMetrics) GenerationAttempt(string, float64) {}
