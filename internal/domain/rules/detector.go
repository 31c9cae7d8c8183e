package rules

import (
	"sort"

	"github.com/abdidvp/layerfix/internal/domain"
)

// Detector matches units against a catalog.
type Detector struct {
	catalog *Catalog
}

func NewDetector(c *Catalog) *Detector {
	return &Detector{catalog: c}
}

// Detect walks the unit's members once. The result is sorted by span start,
// then rule id, independent of member order.
func (d *Detector) Detect(u domain.SourceUnit) []domain.Violation {
	if u.Layer == "" || u.Layer == domain.LayerUnclassified {
		return nil
	}
	rules := d.catalog.ForLayer(u.Layer)
	if len(rules) == 0 {
		return nil
	}

	var out []domain.Violation
	for _, m := range u.Members {
		for _, r := range rules {
			ev := r.match(d.catalog, u, m)
			if len(ev) == 0 {
				continue
			}
			out = append(out, domain.Violation{
				RuleID:      r.ID,
				Title:       r.Title,
				UnitID:      u.ID,
				Unit:        u.Name,
				MemberID:    m.ID,
				Member:      m.Name,
				Path:        u.Path,
				Span:        m.Span,
				Severity:    r.Severity,
				Layer:       u.Layer,
				TargetLayer: r.TargetLayer,
				Advisory:    r.Advisory(),
				Rationale:   r.Rationale,
				Evidence:    ev,
			})
		}
	}
	sortViolations(out)
	return out
}

// DetectAll detects across units, sorted by path, span start and rule id.
func (d *Detector) DetectAll(units []domain.SourceUnit) []domain.Violation {
	var out []domain.Violation
	for _, u := range units {
		out = append(out, d.Detect(u)...)
	}
	sortViolations(out)
	return out
}

func sortViolations(vs []domain.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		return a.RuleID < b.RuleID
	})
}
