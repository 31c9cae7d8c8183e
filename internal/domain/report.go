package domain

import "time"

// Stage is a state of the per-project pipeline.
type Stage string

const (
	StageIngested   Stage = "ingested"
	StageParsed     Stage = "parsed"
	StageClassified Stage = "classified"
	StageDetected   Stage = "detected"
	StagePlanned    Stage = "planned"
	StageGenerating Stage = "generating"
	StageApplying   Stage = "applying"
	StageValidated  Stage = "validated"
	StageReported   Stage = "reported"
)

type StageTransition struct {
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
}

// UnitSummary is the per-unit classification reported back to callers.
type UnitSummary struct {
	Name   string   `json:"name"`
	Kind   UnitKind `json:"kind"`
	Layer  Layer    `json:"layer"`
	Reason string   `json:"reason,omitempty"`
}

type FileReport struct {
	Path       string        `json:"path"`
	Units      []UnitSummary `json:"units,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
	Results    []FixResult   `json:"results,omitempty"`
	ParseError string        `json:"parse_error,omitempty"`
	Reverted   bool          `json:"reverted,omitempty"`
	Created    bool          `json:"created,omitempty"`
}

type ReportCounts struct {
	Files      int `json:"files"`
	Units      int `json:"units"`
	Violations int `json:"violations"`
	Advisories int `json:"advisories"`
	Applied    int `json:"applied"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// ProjectReport aggregates one run. It is the unit returned across the system
// boundary.
type ProjectReport struct {
	RunID      string            `json:"run_id"`
	Project    string            `json:"project,omitempty"`
	CommitHash string            `json:"commit_hash,omitempty"`
	Stage      Stage             `json:"stage"`
	Stages     []StageTransition `json:"stages"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Files      []FileReport      `json:"files"`
	Plans      []FixPlan         `json:"plans,omitempty"`
	Counts     ReportCounts      `json:"counts"`
	Success    bool              `json:"success"`
	Cancelled  bool              `json:"cancelled,omitempty"`
	Error      string            `json:"error,omitempty"`
	Fixed      map[string]string `json:"fixed,omitempty"`
}

// Results flattens the per-file results.
func (r *ProjectReport) Results() []FixResult {
	var out []FixResult
	for _, f := range r.Files {
		out = append(out, f.Results...)
	}
	return out
}

// Violations flattens the per-file violations.
func (r *ProjectReport) Violations() []Violation {
	var out []Violation
	for _, f := range r.Files {
		out = append(out, f.Violations...)
	}
	return out
}

// File returns the report for path.
func (r *ProjectReport) File(path string) (*FileReport, bool) {
	for i := range r.Files {
		if r.Files[i].Path == path {
			return &r.Files[i], true
		}
	}
	return nil, false
}

// Tally recomputes counts and the success flag from the file reports.
func (r *ProjectReport) Tally() {
	c := ReportCounts{Files: len(r.Files)}
	for _, f := range r.Files {
		c.Units += len(f.Units)
		for _, v := range f.Violations {
			if v.Advisory {
				c.Advisories++
			} else {
				c.Violations++
			}
		}
		for _, res := range f.Results {
			switch res.Outcome {
			case OutcomeApplied:
				c.Applied++
			case OutcomeSkipped:
				c.Skipped++
			case OutcomeFailed:
				c.Failed++
			}
		}
	}
	r.Counts = c
	r.Success = r.Error == "" && c.Failed == 0
}

// RunSummary is what the run history keeps of a report.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	Project    string       `json:"project"`
	CommitHash string       `json:"commit_hash,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Counts     ReportCounts `json:"counts"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
}

// Summary condenses the report for the run history.
func (r *ProjectReport) Summary() RunSummary {
	return RunSummary{
		RunID:      r.RunID,
		Project:    r.Project,
		CommitHash: r.CommitHash,
		Timestamp:  r.FinishedAt,
		Counts:     r.Counts,
		Success:    r.Success,
		Error:      r.Error,
	}
}
