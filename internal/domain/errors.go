package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClassificationAmbiguous marks a unit whose markers point at more than
	// one layer. It is never fatal: the unit keeps its precedence winner.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrInvalidRequest marks a generation request that can never succeed
	// (empty body, missing target). Such requests are not retried.
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrNoParsableUnits is the only project-level failure: not a single unit
	// of the submitted project could be parsed.
	ErrNoParsableUnits = errors.New("no parsable units in project")

	// ErrEmptyProject is returned when a submission contains no source files.
	ErrEmptyProject = errors.New("project contains no source files")
)

// ParseError is a unit-local failure to parse a file.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("parse %s: %s", e.File, e.Message)
}

// GenerationFailure is a plan-local failure to obtain replacement text.
type GenerationFailure struct {
	PlanID   string
	RuleID   string
	File     string
	Span     Span
	Attempts int
	Err      error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation for %s (%s %s:%d) failed after %d attempt(s): %v",
		e.PlanID, e.RuleID, e.File, e.Span.StartLine, e.Attempts, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// PatchDriftError reports an edit whose target text moved or disappeared and
// could not be re-mapped.
type PatchDriftError struct {
	PlanID string
	RuleID string
	File   string
	Span   Span
	Reason string
}

func (e *PatchDriftError) Error() string {
	return fmt.Sprintf("patch drift for %s (%s %s:%d): %s",
		e.PlanID, e.RuleID, e.File, e.Span.StartLine, e.Reason)
}

// ValidationRegression reports a patched file that no longer parses or still
// violates a rule its patch was meant to fix.
type ValidationRegression struct {
	File    string
	RuleIDs []string
	Reason  string
}

func (e *ValidationRegression) Error() string {
	if len(e.RuleIDs) == 0 {
		return fmt.Sprintf("validation of %s failed: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("validation of %s failed for %v: %s", e.File, e.RuleIDs, e.Reason)
}
