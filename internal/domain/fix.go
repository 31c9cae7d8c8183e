package domain

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// SeverityRank orders severities, lower is more severe.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// Violation is one detected instance of a rule on a member. Violations are
// never mutated; a new detection pass supersedes them.
type Violation struct {
	RuleID      string   `json:"rule_id"`
	Title       string   `json:"title"`
	UnitID      string   `json:"unit_id"`
	Unit        string   `json:"unit"`
	MemberID    string   `json:"member_id"`
	Member      string   `json:"member"`
	Path        string   `json:"path"`
	Span        Span     `json:"span"`
	Severity    Severity `json:"severity"`
	Layer       Layer    `json:"layer"`
	TargetLayer Layer    `json:"target_layer,omitempty"`
	Advisory    bool     `json:"advisory,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
}

// PlanMode says what happens to the violating member.
type PlanMode string

const (
	// ModeDelegate keeps the member in place and rewrites its body to call the
	// relocated method (controllers keep their endpoints).
	ModeDelegate PlanMode = "delegate"
	// ModeRelocate removes the member and rewrites its callers.
	ModeRelocate PlanMode = "relocate"
	// ModeReport produces no change; used for advisory violations.
	ModeReport PlanMode = "report"
)

// TargetUnit is the unit that receives relocated logic.
type TargetUnit struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Package string `json:"package,omitempty"`
	IsNew   bool   `json:"is_new"`
}

// Dependency is a collaborator the target unit needs as a field.
type Dependency struct {
	Type string `json:"type"`
	Var  string `json:"var"`
}

// CallSiteRef is a call to the violating member that must be rewritten.
type CallSiteRef struct {
	Path       string   `json:"path"`
	UnitName   string   `json:"unit"`
	UnitKind   UnitKind `json:"unit_kind"`
	MemberName string   `json:"member"`
	MemberArgs int      `json:"member_arity"`
	Call       CallSite `json:"call"`
	// PassReceiver moves the call receiver into the first argument, used when an
	// entity method becomes a service method taking the entity.
	PassReceiver bool `json:"pass_receiver,omitempty"`
}

// FixPlan is the proposed relocation for exactly one violation.
type FixPlan struct {
	ID           string        `json:"id"`
	Violation    Violation     `json:"violation"`
	TargetLayer  Layer         `json:"target_layer,omitempty"`
	Target       *TargetUnit   `json:"target,omitempty"`
	Mode         PlanMode      `json:"mode"`
	SourceName   string        `json:"source_member"`
	SourceArity  int           `json:"source_arity"`
	NewMethod    string        `json:"new_method,omitempty"`
	NewSignature string        `json:"new_signature,omitempty"`
	ServiceVar   string        `json:"service_var,omitempty"`
	Dependencies []Dependency  `json:"dependencies,omitempty"`
	CallSites    []CallSiteRef `json:"call_sites,omitempty"`

	// SequentialDependency is set when the plan's span overlaps an earlier
	// plan's span; such plans are applied strictly in detection order.
	SequentialDependency bool   `json:"sequential_dependency,omitempty"`
	DependsOn            string `json:"depends_on,omitempty"`

	// Blocked explains why a relocation cannot be applied safely. Blocked plans
	// get no generated text and fail.
	Blocked string `json:"blocked,omitempty"`

	Notes []string `json:"notes,omitempty"`
}

// Actionable reports whether the plan relocates anything.
func (p FixPlan) Actionable() bool {
	return p.Mode != ModeReport && p.Target != nil && p.Blocked == ""
}

// Generation is the replacement text synthesized for one plan.
type Generation struct {
	PlanID            string `json:"plan_id"`
	RelocatedMethod   string `json:"relocated_method"`
	SourceReplacement string `json:"source_replacement,omitempty"`
	Attempts          int    `json:"attempts"`
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type DiffStat struct {
	Added   int `json:"added"`
	Changed int `json:"changed"`
	Deleted int `json:"deleted"`
}

// FixResult is the terminal record of one plan.
type FixResult struct {
	PlanID  string   `json:"plan_id"`
	RuleID  string   `json:"rule_id"`
	Path    string   `json:"path"`
	Member  string   `json:"member,omitempty"`
	Span    Span     `json:"span"`
	Target  string   `json:"target,omitempty"`
	Outcome Outcome  `json:"outcome"`
	Diff    string   `json:"diff,omitempty"`
	Stat    DiffStat `json:"stat"`
	Notes   []string `json:"notes,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// FixOptions narrows a run.
type FixOptions struct {
	// Rules limits fixing to the given rule ids; empty means all.
	Rules []string `json:"rules,omitempty"`
	// DryRun plans and generates but does not apply patches.
	DryRun bool `json:"dry_run"`
}

// WantsRule reports whether the options select ruleID.
func (o FixOptions) WantsRule(ruleID string) bool {
	if len(o.Rules) == 0 {
		return true
	}
	for _, r := range o.Rules {
		if r == ruleID {
			return true
		}
	}
	return false
}
