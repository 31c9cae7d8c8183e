package domain

// ValidationResult is the verdict on one patched file.
type ValidationResult struct {
	Path       string                `json:"path"`
	Passed     bool                  `json:"passed"`
	Remaining  []Violation           `json:"remaining,omitempty"`
	Regression *ValidationRegression `json:"-"`
	Notes      []string              `json:"notes,omitempty"`
}

// UnverifiedNote is attached to every accepted generated fragment: structural
// validation cannot prove behavioral equivalence.
const UnverifiedNote = "behavioral equivalence not verified"
