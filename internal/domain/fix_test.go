package domain_test

import (
	"testing"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFixPlan_Actionable(t *testing.T) {
	assert.True(t, domain.FixPlan{Mode: domain.ModeRelocate, Target: &domain.TargetUnit{Name: "OrderService"}}.Actionable())
	assert.False(t, domain.FixPlan{Mode: domain.ModeReport}.Actionable())
	assert.False(t, domain.FixPlan{Mode: domain.ModeDelegate}.Actionable())
}

func TestFixOptions_WantsRule(t *testing.T) {
	assert.True(t, domain.FixOptions{}.WantsRule("BL001"))
	opts := domain.FixOptions{Rules: []string{"BL003"}}
	assert.True(t, opts.WantsRule("BL003"))
	assert.False(t, opts.WantsRule("BL001"))
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, domain.SeverityRank(domain.SeverityError), domain.SeverityRank(domain.SeverityWarning))
	assert.Less(t, domain.SeverityRank(domain.SeverityWarning), domain.SeverityRank(domain.SeverityInfo))
	assert.Equal(t, 3, domain.SeverityRank("bogus"))
}
