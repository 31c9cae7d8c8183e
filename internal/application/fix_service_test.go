package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdidvp/layerfix/internal/application"
	"github.com/abdidvp/layerfix/internal/domain"
)

func TestFix_LeakyProject(t *testing.T) {
	gen := newFakeGenerator()
	svc := newService(gen)

	rep, err := svc.Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)
	assert.True(t, rep.Success)
	assert.False(t, rep.Cancelled)
	assert.NotEmpty(t, rep.RunID)

	var stages []domain.Stage
	for _, s := range rep.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []domain.Stage{
		domain.StageIngested, domain.StageParsed, domain.StageClassified, domain.StageDetected,
		domain.StagePlanned, domain.StageGenerating, domain.StageApplying, domain.StageValidated,
		domain.StageReported,
	}, stages)
	assert.Equal(t, domain.StageReported, rep.Stage)

	byRule := resultsByRule(rep)
	for _, id := range []string{"BL001", "BL002", "BL003", "BL004"} {
		assert.Equal(t, domain.OutcomeApplied, byRule[id].Outcome, id)
	}
	assert.Contains(t, byRule["BL001"].Notes, domain.UnverifiedNote)
	assert.Contains(t, byRule["BL002"].Notes, "resolved by "+byRule["BL001"].PlanID)
	assert.Equal(t, 4, rep.Counts.Applied)
	assert.Zero(t, rep.Counts.Failed)

	// BL002 shares its member with BL001 and needs no generation of its own.
	assert.Equal(t, 1, gen.count("findEligibleForDiscount"))
	assert.Equal(t, 1, gen.count("getEligibleOrders"))
	assert.Equal(t, 1, gen.count("getDiscountedTotal"))

	service := pkgDir + "OrderService.java"
	fr, ok := rep.File(service)
	require.True(t, ok)
	assert.True(t, fr.Created)
	assert.Contains(t, rep.Fixed[service], "@Service\npublic class OrderService {")
	assert.Contains(t, rep.Fixed[service], "List<Order> eligibleOrders = findEligibleForDiscount();")
	assert.Contains(t, rep.Fixed[pkgDir+"OrderController.java"], "return orderService.getEligibleOrders();")
	assert.NotContains(t, rep.Fixed[pkgDir+"OrderRepository.java"], "findEligibleForDiscount")
	assert.NotContains(t, rep.Fixed[pkgDir+"Order.java"], "getDiscountedTotal")
}

func TestFix_FixedProjectIsClean(t *testing.T) {
	first, err := newService(newFakeGenerator()).Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)

	fixed := domain.Project{Name: "leaky-fixed", Files: map[string][]byte{}}
	for path, text := range first.Fixed {
		fixed.Files[path] = []byte(text)
	}

	gen := newFakeGenerator()
	second, err := newService(gen).Fix(context.Background(), fixed, domain.FixOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Counts.Violations)
	assert.Zero(t, second.Counts.Applied)
	assert.Zero(t, gen.total())
	assert.True(t, second.Success)
}

func TestFix_GenerationFailureIsLocal(t *testing.T) {
	gen := newFakeGenerator()
	gen.errs["getDiscountedTotal"] = errors.New("upstream unavailable")

	rep, err := newService(gen).Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)
	assert.False(t, rep.Success)

	byRule := resultsByRule(rep)
	assert.Equal(t, domain.OutcomeFailed, byRule["BL004"].Outcome)
	assert.Contains(t, byRule["BL004"].Error, "failed after 3 attempt(s)")
	assert.Contains(t, byRule["BL004"].Error, "upstream unavailable")
	assert.Equal(t, 3, gen.count("getDiscountedTotal"))

	assert.Equal(t, domain.OutcomeApplied, byRule["BL001"].Outcome)
	assert.Equal(t, domain.OutcomeApplied, byRule["BL003"].Outcome)
	assert.Contains(t, rep.Fixed[pkgDir+"Order.java"], "getDiscountedTotal")
	assert.Equal(t, 1, rep.Counts.Failed)
}

func TestFix_InvalidResponsesAreRetried(t *testing.T) {
	gen := newFakeGenerator()
	gen.scripted["getEligibleOrders"] = []string{"not json at all", `{"relocated_method": "int other() { return 1; }"}`}

	rep, err := newService(gen).Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, gen.count("getEligibleOrders"))
	assert.Equal(t, domain.OutcomeApplied, resultsByRule(rep)["BL003"].Outcome)
}

func TestFix_ValidationRevertsRegressedFile(t *testing.T) {
	gen := newFakeGenerator()
	// The replacement keeps the threshold loop in the controller.
	leaky := `public List<Order> getEligibleOrders() {
    List<Order> eligibleOrders = orderService.getEligibleOrders();
    for (Order order : eligibleOrders) {
        if (order.getTotal() > 500) {
            order.setTotal(order.getTotal() * 0.95);
        }
    }
    return eligibleOrders;
}`
	gen.scripted["getEligibleOrders"] = []string{respond(relocated["getEligibleOrders"], leaky)}

	rep, err := newService(gen).Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)

	byRule := resultsByRule(rep)
	assert.Equal(t, domain.OutcomeFailed, byRule["BL003"].Outcome)
	assert.Contains(t, byRule["BL003"].Error, "BL003")
	assert.Equal(t, domain.OutcomeApplied, byRule["BL001"].Outcome)
	assert.Equal(t, domain.OutcomeApplied, byRule["BL004"].Outcome)

	ctrl := pkgDir + "OrderController.java"
	fr, ok := rep.File(ctrl)
	require.True(t, ok)
	assert.True(t, fr.Reverted)
	// Only the call-site rewrite of the relocated repository method remains.
	assert.Contains(t, rep.Fixed[ctrl], "orderService.findEligibleForDiscount()")
	assert.Contains(t, rep.Fixed[ctrl], "0.95")
	assert.NotContains(t, rep.Fixed[pkgDir+"OrderService.java"], "getEligibleOrders")
}

func TestFix_RevertRestoresOriginalBytes(t *testing.T) {
	gen := newFakeGenerator()
	keepsThreshold := `public List<Order> getEligibleOrders() {
    List<Order> eligibleOrders = orderService.getEligibleOrders();
    for (Order order : eligibleOrders) {
        if (order.getTotal() > 500) {
            order.setTotal(order.getTotal() * 0.95);
        }
    }
    return eligibleOrders;
}`
	gen.scripted["getEligibleOrders"] = []string{respond(relocated["getEligibleOrders"], keepsThreshold)}

	project := loadProject(t, leakyDir)
	ctrl := pkgDir + "OrderController.java"
	original := string(project.Files[ctrl])

	rep, err := newService(gen).Fix(context.Background(), project, domain.FixOptions{Rules: []string{"BL003"}})
	require.NoError(t, err)

	results := rep.Results()
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeFailed, results[0].Outcome)

	fr, ok := rep.File(ctrl)
	require.True(t, ok)
	assert.True(t, fr.Reverted)
	assert.NotContains(t, rep.Fixed, ctrl)
	assert.NotContains(t, rep.Fixed, pkgDir+"OrderService.java")
	assert.Equal(t, original, string(project.Files[ctrl]))
}

func TestFix_DryRun(t *testing.T) {
	gen := newFakeGenerator()
	rep, err := newService(gen).Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{DryRun: true})
	require.NoError(t, err)

	assert.Nil(t, rep.Fixed)
	assert.Zero(t, rep.Counts.Applied)
	assert.Equal(t, 4, rep.Counts.Skipped)
	for _, r := range rep.Results() {
		assert.Equal(t, domain.OutcomeSkipped, r.Outcome, r.RuleID)
		assert.Contains(t, r.Notes, "dry run")
	}
	assert.NotEmpty(t, resultsByRule(rep)["BL003"].Diff)
	assert.Equal(t, 3, gen.total())
}

func TestFix_RuleFilter(t *testing.T) {
	gen := newFakeGenerator()
	rep, err := newService(gen).Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{Rules: []string{"BL003"}})
	require.NoError(t, err)

	results := rep.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "BL003", results[0].RuleID)
	assert.Equal(t, domain.OutcomeApplied, results[0].Outcome)
	assert.Equal(t, 4, rep.Counts.Violations)
	assert.Equal(t, 1, gen.total())
	assert.Contains(t, rep.Fixed[pkgDir+"OrderRepository.java"], "findEligibleForDiscount")
}

func TestFix_NoParsableUnits(t *testing.T) {
	rep, err := newService(newFakeGenerator()).Fix(context.Background(), loadProject(t, "../../testdata/java-layered/broken"), domain.FixOptions{})
	require.ErrorIs(t, err, domain.ErrNoParsableUnits)
	require.NotNil(t, rep)
	assert.False(t, rep.Success)
	assert.Equal(t, domain.StageReported, rep.Stage)
	require.Len(t, rep.Files, 1)
	assert.NotEmpty(t, rep.Files[0].ParseError)
}

func TestFix_EmptyProject(t *testing.T) {
	project := domain.Project{Name: "docs", Files: map[string][]byte{"README.md": []byte("# hi")}}
	_, err := newService(newFakeGenerator()).Fix(context.Background(), project, domain.FixOptions{})
	assert.ErrorIs(t, err, domain.ErrEmptyProject)
}

func TestFix_PartialParseFailure(t *testing.T) {
	project := loadProject(t, leakyDir)
	project.Files["src/main/java/com/example/leakydemo/Broken.java"] = []byte("public class Broken { void f( { }")

	rep, err := newService(newFakeGenerator()).Fix(context.Background(), project, domain.FixOptions{})
	require.NoError(t, err)
	fr, ok := rep.File("src/main/java/com/example/leakydemo/Broken.java")
	require.True(t, ok)
	assert.NotEmpty(t, fr.ParseError)
	require.Len(t, fr.Results, 1)
	assert.Equal(t, domain.OutcomeFailed, fr.Results[0].Outcome)
	assert.Equal(t, fr.ParseError, fr.Results[0].Error)

	assert.Equal(t, 4, rep.Counts.Applied)
	assert.Equal(t, 1, rep.Counts.Failed)
	assert.False(t, rep.Success)
}

func TestDetect_ParseFailureCounts(t *testing.T) {
	project := loadProject(t, cleanDir)
	project.Files["Broken.java"] = []byte("public class Broken { void f( { }")

	rep, err := newService(newFakeGenerator()).Detect(context.Background(), project)
	require.NoError(t, err)
	assert.Zero(t, rep.Counts.Violations)
	assert.Equal(t, 1, rep.Counts.Failed)
	assert.False(t, rep.Success)
}

func TestFix_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := newFakeGenerator()
	gen.hook = func(string) { cancel() }
	opts := fastOptions
	opts.Concurrency = 1
	svc := application.NewFixService(parserForTest(), catalogForTest(), newGenerator(gen, opts), nil)

	rep, err := svc.Fix(ctx, loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)
	assert.True(t, rep.Cancelled)
	assert.Equal(t, 1, gen.total())
	assert.Equal(t, domain.StageReported, rep.Stage)

	byRule := resultsByRule(rep)
	for _, id := range []string{"BL001", "BL003"} {
		assert.Equal(t, domain.OutcomeSkipped, byRule[id].Outcome, id)
		assert.Contains(t, byRule[id].Notes, "cancelled", id)
	}
}

func TestDetect(t *testing.T) {
	gen := newFakeGenerator()
	rep, err := newService(gen).Detect(context.Background(), loadProject(t, leakyDir))
	require.NoError(t, err)

	assert.Equal(t, domain.StageDetected, rep.Stage)
	assert.Equal(t, 4, rep.Counts.Violations)
	assert.Empty(t, rep.Results())
	assert.Nil(t, rep.Fixed)
	assert.Zero(t, gen.total())

	var ids []string
	for _, v := range rep.Violations() {
		ids = append(ids, v.RuleID)
	}
	assert.ElementsMatch(t, []string{"BL001", "BL002", "BL003", "BL004"}, ids)

	fr, ok := rep.File(pkgDir + "OrderController.java")
	require.True(t, ok)
	require.Len(t, fr.Units, 1)
	assert.Equal(t, domain.LayerController, fr.Units[0].Layer)
}

func TestDetect_CleanProject(t *testing.T) {
	rep, err := newService(newFakeGenerator()).Detect(context.Background(), loadProject(t, cleanDir))
	require.NoError(t, err)
	assert.Zero(t, rep.Counts.Violations)
	assert.True(t, rep.Success)
}

func TestFix_RecordsHistory(t *testing.T) {
	hist := &recordingHistory{}
	rep, err := newService(newFakeGenerator(), application.WithHistory(hist)).
		Fix(context.Background(), loadProject(t, leakyDir), domain.FixOptions{})
	require.NoError(t, err)

	runs, err := hist.List("", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].RunID)
	assert.Equal(t, "leaky", runs[0].Project)
	assert.Equal(t, 4, runs[0].Counts.Applied)
	assert.True(t, runs[0].Success)
}

func TestFix_InternalCallerBlocksRelocation(t *testing.T) {
	project := loadProject(t, leakyDir)
	orderPath := pkgDir + "Order.java"
	original := strings.Replace(string(project.Files[orderPath]), "    // Getters and setters",
		"    public String summary() {\n        return \"due \" + getDiscountedTotal();\n    }\n\n    // Getters and setters", 1)
	project.Files[orderPath] = []byte(original)

	gen := newFakeGenerator()
	rep, err := newService(gen).Fix(context.Background(), project, domain.FixOptions{})
	require.NoError(t, err)

	byRule := resultsByRule(rep)
	assert.Equal(t, domain.OutcomeFailed, byRule["BL004"].Outcome)
	assert.Contains(t, byRule["BL004"].Error, "called without a receiver inside Order by summary")
	assert.Zero(t, gen.count("getDiscountedTotal"))
	assert.Equal(t, domain.OutcomeApplied, byRule["BL001"].Outcome)
	assert.Equal(t, domain.OutcomeApplied, byRule["BL003"].Outcome)

	assert.NotContains(t, rep.Fixed, orderPath)
	assert.Equal(t, 1, rep.Counts.Failed)
	assert.False(t, rep.Success)
}

func TestFix_DeclaredRepositoryMethodFailsWithReason(t *testing.T) {
	project := domain.Project{Name: "catalog", Files: map[string][]byte{
		"com/example/shop/ProductRepository.java": []byte(`package com.example.shop;

import org.springframework.data.jpa.repository.JpaRepository;
import java.util.List;

public interface ProductRepository extends JpaRepository<Product, Long> {

    List<Product> findFeaturedProducts();

    List<Product> findBestsellerByCategory(String category);
}
`),
	}}

	gen := newFakeGenerator()
	rep, err := newService(gen).Fix(context.Background(), project, domain.FixOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Counts.Violations)
	assert.Equal(t, 2, rep.Counts.Failed)
	for _, r := range rep.Results() {
		assert.Equal(t, "BL001", r.RuleID)
		assert.Equal(t, domain.OutcomeFailed, r.Outcome, r.Member)
		assert.Contains(t, r.Error, "has no body", r.Member)
	}
	assert.Zero(t, gen.total())
	assert.Empty(t, rep.Fixed)
}
