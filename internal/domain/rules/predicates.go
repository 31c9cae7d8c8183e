package rules

import (
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

func callable(m domain.Member) bool {
	return m.Kind == domain.MemberMethod && m.HasBody
}

// matchRepositoryLogic flags computation in a repository body, and business
// concepts in any repository method name, declared or implemented.
func matchRepositoryLogic(c *Catalog, _ domain.SourceUnit, m domain.Member) []string {
	if m.Kind != domain.MemberMethod {
		return nil
	}
	f := m.Facts
	var ev []string
	for _, op := range f.StreamOps {
		ev = append(ev, "stream "+op)
	}
	for _, cmp := range f.BusinessComparisons {
		ev = append(ev, "comparison "+cmp)
	}
	for _, a := range f.BusinessArithmetic {
		ev = append(ev, "arithmetic "+a)
	}
	if f.Arithmetic > len(f.BusinessArithmetic) {
		ev = append(ev, "arithmetic on fetched data")
	}
	if terms := c.BusinessTerms(m.NameTokens); len(terms) > 0 {
		ev = append(ev, "business term "+strings.Join(terms, ", "))
	}
	return ev
}

func matchRepositoryMutation(_ *Catalog, _ domain.SourceUnit, m domain.Member) []string {
	if !callable(m) {
		return nil
	}
	var ev []string
	for _, mut := range m.Facts.ExternalMutations {
		ev = append(ev, "mutation "+mut)
	}
	return ev
}

func matchControllerRule(_ *Catalog, _ domain.SourceUnit, m domain.Member) []string {
	if !callable(m) {
		return nil
	}
	f := m.Facts
	var ev []string
	for _, cmp := range f.BusinessComparisons {
		ev = append(ev, "threshold "+cmp)
	}
	for _, a := range f.BusinessArithmetic {
		ev = append(ev, "arithmetic "+a)
	}
	for _, mut := range f.ExternalMutations {
		ev = append(ev, "mutation "+mut)
	}
	return ev
}

func matchEntityRule(_ *Catalog, _ domain.SourceUnit, m domain.Member) []string {
	if !callable(m) || m.HasModifier("static") || len(m.Facts.OwnFieldReads) == 0 {
		return nil
	}
	f := m.Facts
	if len(f.BusinessArithmetic) == 0 && len(f.BusinessComparisons) == 0 {
		return nil
	}
	ev := []string{"reads " + strings.Join(f.OwnFieldReads, ", ")}
	for _, cmp := range f.BusinessComparisons {
		ev = append(ev, "comparison "+cmp)
	}
	for _, a := range f.BusinessArithmetic {
		ev = append(ev, "arithmetic "+a)
	}
	return ev
}

var repositoryTokens = []string{"repository", "repo", "dao"}

func matchAnemicService(_ *Catalog, u domain.SourceUnit, m domain.Member) []string {
	if !callable(m) || m.Facts.ForwardsTo == nil {
		return nil
	}
	call := m.Facts.ForwardsTo
	recv := strings.TrimPrefix(call.Receiver, "this.")
	if recv == "" {
		return nil
	}
	candidates := []string{strings.ToLower(recv)}
	for _, f := range u.Fields() {
		if f.Name == recv {
			candidates = append(candidates, strings.ToLower(domain.BaseType(f.ReturnType)))
		}
	}
	for _, c := range candidates {
		for _, t := range repositoryTokens {
			if strings.HasSuffix(c, t) {
				return []string{"forwards to " + call.Text()}
			}
		}
	}
	return nil
}
