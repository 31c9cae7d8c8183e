package tui_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/tui"
	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

func sampleReport() *domain.ProjectReport {
	rep := &domain.ProjectReport{
		Project: "shop",
		Files: []domain.FileReport{
			{
				Path:  "src/main/java/com/example/shop/OrderController.java",
				Units: []domain.UnitSummary{{Name: "OrderController", Layer: domain.LayerController}},
				Violations: []domain.Violation{{
					RuleID: "BL003", Title: "Business rule in controller", Unit: "OrderController",
					Member: "getEligibleOrders", Severity: domain.SeverityError, Span: domain.Span{StartLine: 14},
				}},
				Results: []domain.FixResult{{
					RuleID: "BL003", Member: "getEligibleOrders", Target: "OrderService",
					Outcome: domain.OutcomeFailed, Error: "generation failed after 3 attempt(s)",
				}},
			},
			{
				Path:    "src/main/java/com/example/shop/OrderService.java",
				Created: true,
			},
			{Path: "src/main/java/com/example/shop/Order.java"},
		},
	}
	rep.Tally()
	return rep
}

func TestRenderReport_Summary(t *testing.T) {
	out := tui.RenderReport(sampleReport())
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "1 violations")
	assert.Contains(t, out, "0 applied")
}

func TestRenderReport_FileDetails(t *testing.T) {
	out := tui.RenderReport(sampleReport())
	assert.Contains(t, out, "com/example/shop/OrderController.java")
	assert.Contains(t, out, "OrderController.getEligibleOrders:14")
	assert.Contains(t, out, "generation failed after 3 attempt(s)")
	assert.Contains(t, out, "created")
	assert.NotContains(t, out, "Order.java\n")
}

func TestRenderReport_Clean(t *testing.T) {
	rep := &domain.ProjectReport{Project: "clean", Files: []domain.FileReport{{Path: "A.java"}}}
	rep.Tally()
	out := tui.RenderReport(rep)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "No violations found.")
}

func TestRenderReport_Error(t *testing.T) {
	rep := &domain.ProjectReport{Project: "broken", Error: "no parsable units"}
	rep.Tally()
	out := tui.RenderReport(rep)
	assert.Contains(t, out, "no parsable units")
}

func TestRenderHistory(t *testing.T) {
	runs := []domain.RunSummary{
		{Project: "shop", CommitHash: "abcdef1234", Timestamp: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
			Counts: domain.ReportCounts{Violations: 4, Applied: 3, Failed: 1}},
		{Project: "shop", Timestamp: time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), Success: true},
	}
	out := tui.RenderHistory(runs)
	assert.Contains(t, out, "Run History")
	assert.Contains(t, out, "abcdef1")
	assert.NotContains(t, out, "abcdef12")
	assert.Contains(t, out, "2026-03-01 10:30")
	assert.Contains(t, out, "4 violations, 3 applied, 1 failed")
	assert.Contains(t, out, "fail")
	assert.Contains(t, out, "ok")
}

func TestRenderHistory_Empty(t *testing.T) {
	assert.Contains(t, tui.RenderHistory(nil), "No run history found.")
}

func TestRenderRules(t *testing.T) {
	out := tui.RenderRules(rules.NewCatalog(rules.Options{}).Rules())
	assert.Contains(t, out, "Rule Catalog")
	for _, id := range []string{"BL001", "BL002", "BL003", "BL004", "BL005"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "report only")
	assert.Contains(t, out, "→ service")
}

func TestRenderPlans(t *testing.T) {
	plans := []domain.FixPlan{
		{
			Violation:  domain.Violation{RuleID: "BL001", Unit: "OrderRepository"},
			SourceName: "findEligibleForDiscount",
			Mode:       domain.ModeRelocate,
			Target:     &domain.TargetUnit{Name: "OrderService", IsNew: true},
			NewMethod:  "findEligibleForDiscount",
		},
		{
			Violation:            domain.Violation{RuleID: "BL003", Unit: "OrderController"},
			SourceName:           "getEligibleOrders",
			Mode:                 domain.ModeDelegate,
			Target:               &domain.TargetUnit{Name: "OrderService"},
			SequentialDependency: true,
			DependsOn:            "plan-1",
		},
		{
			Violation:  domain.Violation{RuleID: "BL005", Unit: "OrderService"},
			SourceName: "save",
			Mode:       domain.ModeReport,
		},
		{
			Violation:  domain.Violation{RuleID: "BL004", Unit: "Order"},
			SourceName: "getDiscountedTotal",
			Mode:       domain.ModeRelocate,
			Target:     &domain.TargetUnit{Name: "OrderService"},
			Blocked:    "getDiscountedTotal is called without a receiver inside Order by summary",
		},
	}
	out := tui.RenderPlans(plans)
	assert.Contains(t, out, "blocked: getDiscountedTotal is called without a receiver")
	assert.Contains(t, out, "OrderRepository.findEligibleForDiscount")
	assert.Contains(t, out, "OrderService.findEligibleForDiscount (new)")
	assert.Contains(t, out, "delegate")
	assert.Contains(t, out, "after plan-1")
	assert.Contains(t, out, "report")
}

func TestRenderPlans_Empty(t *testing.T) {
	assert.Contains(t, tui.RenderPlans(nil), "No fix plans.")
}
