// Package planner turns violations into relocation plans. Planning is pure
// data construction and never touches source text.
package planner

import (
	"fmt"
	"path"
	"strings"

	"github.com/fatih/camelcase"

	"github.com/abdidvp/layerfix/internal/domain"
)

// layerSuffixes are trailing name tokens that name a layer rather than a
// domain concept.
var layerSuffixes = map[string]bool{
	"Controller": true, "Repository": true, "Repo": true, "Dao": true, "Resource": true,
	"Entity": true, "Impl": true, "Service": true, "Endpoint": true, "Handler": true,
	"Model": true, "Jpa": true, "Rest": true, "Api": true,
}

// strategy decides how a violation in a given layer is relocated.
type strategy struct {
	mode domain.PlanMode
	// passEntity makes the relocated method take the source unit as its first
	// parameter.
	passEntity bool
	// sourceIsDependency injects the source unit into the target.
	sourceIsDependency bool
	// fieldDependencies injects the source fields the member uses.
	fieldDependencies bool
	// rewriteCallers rewrites calls to the violating member.
	rewriteCallers bool
}

var strategies = map[domain.Layer]strategy{
	domain.LayerController: {mode: domain.ModeDelegate, fieldDependencies: true},
	domain.LayerRepository: {mode: domain.ModeRelocate, sourceIsDependency: true, rewriteCallers: true},
	domain.LayerEntity:     {mode: domain.ModeRelocate, passEntity: true, rewriteCallers: true},
}

// DomainNoun strips layer suffixes from a unit name: "OrderController" -> "Order".
func DomainNoun(name string) string {
	tokens := camelcase.Split(name)
	for len(tokens) > 1 && layerSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, "")
}

// PlanID is the stable identifier of the plan for a violation.
func PlanID(v domain.Violation) string {
	return v.RuleID + ":" + v.MemberID
}

type planner struct {
	units   []domain.SourceUnit
	byID    map[string]domain.SourceUnit
	targets map[string]*domain.TargetUnit
	// internal holds, per plan id, the members of the source unit that call the
	// relocated member without a receiver.
	internal map[string][]domain.Member
}

// Plan builds exactly one plan per violation, in violation order. Plans whose
// spans overlap an earlier plan's span in the same file are marked
// sequential and point at the most recent such plan.
func Plan(units []domain.SourceUnit, violations []domain.Violation) []domain.FixPlan {
	p := &planner{
		units:    units,
		byID:     make(map[string]domain.SourceUnit, len(units)),
		targets:  map[string]*domain.TargetUnit{},
		internal: map[string][]domain.Member{},
	}
	for _, u := range units {
		p.byID[u.ID] = u
	}

	plans := make([]domain.FixPlan, 0, len(violations))
	for _, v := range violations {
		plans = append(plans, p.plan(v))
	}
	p.markBlocked(plans)
	markSequential(plans)
	return plans
}

func (p *planner) plan(v domain.Violation) domain.FixPlan {
	plan := domain.FixPlan{
		ID:          PlanID(v),
		Violation:   v,
		TargetLayer: v.TargetLayer,
		Mode:        domain.ModeReport,
		SourceName:  v.Member,
	}

	src, ok := p.byID[v.UnitID]
	if !ok {
		plan.Notes = append(plan.Notes, "source unit not found")
		return plan
	}
	member, ok := src.Member(v.MemberID)
	if !ok {
		plan.Notes = append(plan.Notes, "source member not found")
		return plan
	}
	plan.SourceArity = member.Arity()

	strat, ok := strategies[src.Layer]
	if v.Advisory || v.TargetLayer == "" || !ok {
		return plan
	}

	target := p.target(src)
	plan.Target = target
	plan.Mode = strat.mode
	plan.ServiceVar = domain.LowerFirst(target.Name)
	plan.NewMethod = member.Name

	params := member.Params
	if strat.passEntity {
		params = append([]domain.Param{{Name: domain.LowerFirst(src.Name), Type: src.Name}}, params...)
	}
	plan.NewSignature = signature(member, params)

	if strat.sourceIsDependency {
		plan.Dependencies = append(plan.Dependencies, domain.Dependency{Type: src.Name, Var: domain.LowerFirst(src.Name)})
	}
	if strat.fieldDependencies {
		plan.Dependencies = append(plan.Dependencies, fieldDependencies(src, member)...)
	}
	if strat.rewriteCallers {
		plan.CallSites, p.internal[plan.ID] = p.callSites(src, member, strat.passEntity)
	}
	return plan
}

// markBlocked blocks relocations whose member is still called without a
// receiver from inside its own unit. Calls made by members that another plan
// relocates or delegates leave the unit with them and do not block.
func (p *planner) markBlocked(plans []domain.FixPlan) {
	moved := map[string]bool{}
	for _, q := range plans {
		if q.Actionable() {
			moved[q.Violation.MemberID] = true
		}
	}
	for i := range plans {
		var callers []string
		seen := map[string]bool{}
		for _, c := range p.internal[plans[i].ID] {
			if moved[c.ID] || seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			callers = append(callers, c.Name)
		}
		if len(callers) == 0 {
			continue
		}
		v := plans[i].Violation
		plans[i].Blocked = fmt.Sprintf("%s is called without a receiver inside %s by %s; removing it would break those calls",
			v.Member, v.Unit, strings.Join(callers, ", "))
	}
}

// target finds the service that receives logic from src, or synthesizes one
// next to src. Synthesized targets are shared by every plan with the same noun.
func (p *planner) target(src domain.SourceUnit) *domain.TargetUnit {
	noun := DomainNoun(src.Name)
	dir := path.Dir(src.Path)
	key := noun + "|" + dir
	if t, ok := p.targets[key]; ok {
		return t
	}

	var best *domain.SourceUnit
	score := 0
	nounTokens := strings.ToLower(noun)
	for i := range p.units {
		u := &p.units[i]
		if u.Kind != domain.UnitClass {
			continue
		}
		s := 0
		switch {
		case u.Name == noun+"Service" || u.Name == noun+"ServiceImpl":
			s = 3
		case u.Layer == domain.LayerService && strings.Contains(strings.Join(u.Markers.NameTokens, ""), nounTokens):
			s = 1
		}
		if s > 0 && path.Dir(u.Path) == dir {
			s++
		}
		if s > score {
			best, score = u, s
		}
	}

	var t *domain.TargetUnit
	if best != nil {
		t = &domain.TargetUnit{Name: best.Name, Path: best.Path, Package: best.Package}
	} else {
		name := noun + "Service"
		t = &domain.TargetUnit{Name: name, Path: path.Join(dir, name+".java"), Package: src.Package, IsNew: true}
	}
	p.targets[key] = t
	return t
}

func signature(m domain.Member, params []domain.Param) string {
	ret := m.ReturnType
	if ret == "" {
		ret = "void"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Type + " " + p.Name
	}
	return fmt.Sprintf("public %s %s(%s)", ret, m.Name, strings.Join(parts, ", "))
}

// fieldDependencies lists the fields of src the member calls into.
func fieldDependencies(src domain.SourceUnit, m domain.Member) []domain.Dependency {
	var deps []domain.Dependency
	seen := map[string]bool{}
	for _, c := range m.Calls {
		recv := strings.TrimPrefix(c.Receiver, "this.")
		if recv == "" || seen[recv] {
			continue
		}
		for _, f := range src.Fields() {
			if f.Name == recv {
				seen[recv] = true
				deps = append(deps, domain.Dependency{Type: domain.BaseType(f.ReturnType), Var: f.Name})
			}
		}
	}
	return deps
}

// callSites finds every call to m across the project. A call matches when its
// receiver is typed as src through a field or parameter, or when m's name and
// arity are unique to src in the project. Calls without a receiver inside src
// cannot be rewritten and are returned as their calling members.
func (p *planner) callSites(src domain.SourceUnit, m domain.Member, passReceiver bool) ([]domain.CallSiteRef, []domain.Member) {
	unique := true
	for _, u := range p.units {
		if u.ID == src.ID {
			continue
		}
		if _, ok := u.FindMethod(m.Name, m.Arity()); ok {
			unique = false
			break
		}
	}

	var refs []domain.CallSiteRef
	var internal []domain.Member
	for _, u := range p.units {
		for _, caller := range u.Members {
			if !caller.HasBody || caller.ID == m.ID {
				continue
			}
			for _, c := range caller.Calls {
				if c.Method != m.Name || c.Arity != m.Arity() {
					continue
				}
				recv := c.Receiver
				if recv == "" || recv == "this" {
					if u.ID == src.ID {
						internal = append(internal, caller)
					}
					continue
				}
				typ, known := receiverType(u, caller, recv)
				if known && typ != src.Name {
					continue
				}
				if !known && !unique {
					continue
				}
				refs = append(refs, domain.CallSiteRef{
					Path:         u.Path,
					UnitName:     u.Name,
					UnitKind:     u.Kind,
					MemberName:   caller.Name,
					MemberArgs:   caller.Arity(),
					Call:         c,
					PassReceiver: passReceiver,
				})
			}
		}
	}
	return refs, internal
}

// receiverType resolves a simple receiver through the caller's parameters and
// the unit's fields.
func receiverType(u domain.SourceUnit, caller domain.Member, recv string) (string, bool) {
	recv = strings.TrimPrefix(recv, "this.")
	for _, p := range caller.Params {
		if p.Name == recv {
			return domain.BaseType(p.Type), true
		}
	}
	for _, f := range u.Fields() {
		if f.Name == recv {
			return domain.BaseType(f.ReturnType), true
		}
	}
	return "", false
}

func markSequential(plans []domain.FixPlan) {
	for j := range plans {
		for i := j - 1; i >= 0; i-- {
			a, b := plans[i].Violation, plans[j].Violation
			if a.Path != b.Path || !a.Span.Overlaps(b.Span) {
				continue
			}
			plans[j].SequentialDependency = true
			plans[j].DependsOn = plans[i].ID
			break
		}
	}
}
