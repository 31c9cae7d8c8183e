package domain_test

import (
	"errors"
	"testing"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestProjectReport_Tally(t *testing.T) {
	r := &domain.ProjectReport{Files: []domain.FileReport{
		{
			Path:  "Order.java",
			Units: []domain.UnitSummary{{Name: "Order"}},
			Violations: []domain.Violation{
				{RuleID: "BL004"},
				{RuleID: "BL005", Advisory: true},
			},
			Results: []domain.FixResult{
				{Outcome: domain.OutcomeApplied},
				{Outcome: domain.OutcomeSkipped},
			},
		},
		{
			Path:    "OrderRepository.java",
			Results: []domain.FixResult{{Outcome: domain.OutcomeFailed}},
		},
	}}
	r.Tally()

	assert.Equal(t, 2, r.Counts.Files)
	assert.Equal(t, 1, r.Counts.Units)
	assert.Equal(t, 1, r.Counts.Violations)
	assert.Equal(t, 1, r.Counts.Advisories)
	assert.Equal(t, 1, r.Counts.Applied)
	assert.Equal(t, 1, r.Counts.Skipped)
	assert.Equal(t, 1, r.Counts.Failed)
	assert.False(t, r.Success)
	assert.Len(t, r.Results(), 3)

	f, ok := r.File("OrderRepository.java")
	assert.True(t, ok)
	assert.Len(t, f.Results, 1)
}

func TestErrors_Unwrap(t *testing.T) {
	err := &domain.GenerationFailure{PlanID: "p1", RuleID: "BL001", File: "a.java", Attempts: 1, Err: domain.ErrInvalidRequest}
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	assert.Contains(t, err.Error(), "BL001")

	var target *domain.GenerationFailure
	assert.True(t, errors.As(error(err), &target))

	reg := &domain.ValidationRegression{File: "a.java", RuleIDs: []string{"BL003"}, Reason: "still violates"}
	assert.Contains(t, reg.Error(), "BL003")

	pe := &domain.ParseError{File: "a.java", Line: 3, Message: "unexpected token"}
	assert.Equal(t, "parse a.java:3: unexpected token", pe.Error())
}
