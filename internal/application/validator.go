package application

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/classify"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

// Validator re-analyzes a patched file and checks that the patch did not
// introduce violations of the rules it was meant to fix.
type Validator struct {
	parser   domain.UnitParser
	detector *rules.Detector
}

func NewValidator(parser domain.UnitParser, detector *rules.Detector) *Validator {
	return &Validator{parser: parser, detector: detector}
}

// Validate compares the file before and after patching. before is nil for
// created files. The file fails when it no longer parses, when a unit still
// calls a member a plan removed from it, or when a rule triggered by one of
// the plans now matches a member that did not match it before, or still
// matches the member a plan moved.
func (v *Validator) Validate(ctx context.Context, path string, before, after []byte, plans []domain.FixPlan) domain.ValidationResult {
	res := domain.ValidationResult{Path: path}

	units, err := v.parser.Parse(ctx, path, after)
	if err != nil {
		res.Regression = &domain.ValidationRegression{File: path, Reason: fmt.Sprintf("patched file does not parse: %v", err)}
		return res
	}
	res.Remaining = v.detector.DetectAll(classify.Units(units))

	if dangling := danglingCalls(units, path, plans); len(dangling) > 0 {
		res.Notes = dangling
		res.Regression = &domain.ValidationRegression{File: path, Reason: "patched code calls a removed member"}
		return res
	}

	triggering := map[string]bool{}
	moved := map[string]bool{}
	for _, p := range plans {
		triggering[p.Violation.RuleID] = true
		if p.Violation.Path == path {
			moved[memberKey(p.Violation.Unit, p.SourceName, p.SourceArity)] = true
		}
	}

	existing := map[string]bool{}
	if before != nil {
		if prior, err := v.parser.Parse(ctx, path, before); err == nil {
			for _, vi := range v.detector.DetectAll(classify.Units(prior)) {
				existing[vi.RuleID+"|"+violationKey(prior, vi)] = true
			}
		}
	}

	var regressed []string
	seen := map[string]bool{}
	for _, vi := range res.Remaining {
		if !triggering[vi.RuleID] {
			continue
		}
		key := violationKey(units, vi)
		if existing[vi.RuleID+"|"+key] && !moved[key] {
			continue
		}
		if !seen[vi.RuleID] {
			seen[vi.RuleID] = true
			regressed = append(regressed, vi.RuleID)
		}
		res.Notes = append(res.Notes, fmt.Sprintf("%s still matches %s.%s", vi.RuleID, vi.Unit, vi.Member))
	}
	if len(regressed) > 0 {
		sort.Strings(regressed)
		res.Regression = &domain.ValidationRegression{File: path, RuleIDs: regressed, Reason: "patched code still violates the fixed rules"}
		return res
	}
	res.Passed = true
	return res
}

// danglingCalls reports receiverless calls to members that relocation plans
// removed from their unit in this file.
func danglingCalls(units []domain.SourceUnit, path string, plans []domain.FixPlan) []string {
	var notes []string
	for _, p := range plans {
		if p.Mode != domain.ModeRelocate || p.Violation.Path != path {
			continue
		}
		for _, u := range units {
			if u.Name != p.Violation.Unit {
				continue
			}
			if _, ok := u.FindMethod(p.SourceName, p.SourceArity); ok {
				continue
			}
			for _, m := range u.Members {
				for _, c := range m.Calls {
					if c.Method == p.SourceName && c.Arity == p.SourceArity && (c.Receiver == "" || c.Receiver == "this") {
						notes = append(notes, fmt.Sprintf("%s.%s calls removed %s", u.Name, m.Name, p.SourceName))
					}
				}
			}
		}
	}
	return notes
}

// violationKey identifies a member independently of its offsets.
func violationKey(units []domain.SourceUnit, vi domain.Violation) string {
	for _, u := range units {
		if u.ID != vi.UnitID {
			continue
		}
		if m, ok := u.Member(vi.MemberID); ok {
			return memberKey(u.Name, m.Name, m.Arity())
		}
	}
	return memberKey(vi.Unit, vi.Member, -1)
}

func memberKey(unit, member string, arity int) string {
	return unit + "." + member + "/" + strconv.Itoa(arity)
}
