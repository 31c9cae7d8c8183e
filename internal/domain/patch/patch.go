// Package patch turns fix plans and their generated text into new file
// contents. It never mutates the submitted project: every round starts again
// from the original bytes.
package patch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abdidvp/layerfix/internal/domain"
)

// Input is everything a patch round needs.
type Input struct {
	// Files holds the original project text by path.
	Files map[string][]byte
	// Units are the classified units parsed from Files.
	Units []domain.SourceUnit
	// Plans in detection order.
	Plans []domain.FixPlan
	// Generations by plan id.
	Generations map[string]domain.Generation
	// Settled holds results decided before patching (generation failures,
	// cancellation, validation regressions). Settled plans produce no edits.
	Settled map[string]domain.FixResult
}

// Outcome is the result of applying every plan that could be applied.
type Outcome struct {
	// Files holds the new text of every changed or created file.
	Files map[string][]byte
	// Created lists the paths in Files that did not exist before.
	Created []string
	// Results has exactly one entry per plan, in plan order.
	Results []domain.FixResult
	// Touched maps a path to the ids of the applied plans that edited it.
	Touched map[string][]string
}

// Redundant maps the id of every actionable plan whose member is already
// relocated by an earlier actionable plan to that earlier plan's id. Such
// plans need no generated text of their own.
func Redundant(plans []domain.FixPlan) map[string]string {
	out := map[string]string{}
	owner := map[string]domain.FixPlan{}
	for _, p := range plans {
		if !p.Actionable() {
			continue
		}
		key := p.Violation.MemberID
		if o, ok := owner[key]; ok && o.TargetLayer == p.TargetLayer {
			out[p.ID] = o.ID
			continue
		}
		owner[key] = p
	}
	return out
}

// Apply patches the project. Plans are atomic across files: a plan that
// cannot be applied in one file is dropped and every file is recomputed from
// the originals without it, until no plan fails.
func Apply(ctx context.Context, parser domain.UnitParser, in Input) (Outcome, error) {
	failed := map[string]error{}
	for round := 0; round <= len(in.Plans); round++ {
		out, fails, err := applyOnce(ctx, parser, in, failed)
		if err != nil {
			return Outcome{}, err
		}
		if len(fails) == 0 {
			return out, nil
		}
		for id, e := range fails {
			failed[id] = e
		}
	}
	return Outcome{}, fmt.Errorf("applying patches: no stable plan set after %d rounds", len(in.Plans)+1)
}

type planState int

const (
	stateActive planState = iota
	stateSettled
	stateReport
	stateFailed
	stateResolved
	stateOrphaned
	stateNoGeneration
	stateBlocked
)

func applyOnce(ctx context.Context, parser domain.UnitParser, in Input, failed map[string]error) (Outcome, map[string]error, error) {
	states := make([]planState, len(in.Plans))
	owners := map[string]int{}
	redundant := Redundant(in.Plans)
	byID := map[string]int{}
	for i, p := range in.Plans {
		byID[p.ID] = i
	}

	for i, p := range in.Plans {
		switch {
		case hasKey(in.Settled, p.ID):
			states[i] = stateSettled
		case p.Blocked != "":
			states[i] = stateBlocked
		case !p.Actionable():
			states[i] = stateReport
		case failed[p.ID] != nil:
			states[i] = stateFailed
		case redundant[p.ID] != "":
			states[i] = stateResolved
		case !hasKey(in.Generations, p.ID):
			states[i] = stateNoGeneration
		default:
			states[i] = stateActive
			owners[p.Violation.MemberID] = i
		}
	}
	for i, p := range in.Plans {
		if states[i] != stateResolved {
			continue
		}
		if j := byID[redundant[p.ID]]; states[j] != stateActive {
			states[i] = stateOrphaned
		}
	}

	b := newBuilder(in, states)
	edits := map[int][]edit{}
	notes := map[int][]string{}
	fails := map[string]error{}
	for i, p := range in.Plans {
		if states[i] != stateActive {
			continue
		}
		es, ns, err := b.planEdits(i)
		if err != nil {
			fails[p.ID] = err
			continue
		}
		edits[i] = es
		notes[i] = ns
	}
	if len(fails) > 0 {
		return Outcome{}, fails, nil
	}

	jobs := b.jobs(edits)
	outs := make([]fileOutcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for k := range jobs {
		g.Go(func() error {
			o, err := applyFile(gctx, parser, jobs[k])
			outs[k] = o
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, nil, err
	}

	for k, o := range outs {
		for i, err := range o.failed {
			p := in.Plans[i]
			fails[p.ID] = &domain.PatchDriftError{
				PlanID: p.ID,
				RuleID: p.Violation.RuleID,
				File:   jobs[k].path,
				Span:   p.Violation.Span,
				Reason: err.Error(),
			}
		}
	}
	if len(fails) > 0 {
		return Outcome{}, fails, nil
	}

	out := Outcome{
		Files:   map[string][]byte{},
		Touched: map[string][]string{},
		Results: make([]domain.FixResult, len(in.Plans)),
	}
	diffs := map[int][]string{}
	for k, o := range outs {
		job := jobs[k]
		if job.created || string(o.text) != string(job.original) {
			out.Files[job.path] = o.text
		}
		if job.created {
			out.Created = append(out.Created, job.path)
		}
		for _, i := range o.order {
			out.Touched[job.path] = append(out.Touched[job.path], in.Plans[i].ID)
			if d := o.diffs[i]; d != "" {
				diffs[i] = append(diffs[i], d)
			}
			notes[i] = append(notes[i], o.notes[i]...)
		}
	}
	sort.Strings(out.Created)

	for i, p := range in.Plans {
		r := baseResult(p)
		switch states[i] {
		case stateSettled:
			r = in.Settled[p.ID]
		case stateReport:
			r.Outcome = domain.OutcomeSkipped
			r.Notes = append(r.Notes, reportNote(p))
		case stateFailed:
			r.Outcome = domain.OutcomeFailed
			r.Error = failed[p.ID].Error()
		case stateBlocked:
			r.Outcome = domain.OutcomeFailed
			r.Error = p.Blocked
		case stateResolved:
			r.Outcome = domain.OutcomeApplied
			r.Notes = append(r.Notes, "resolved by "+redundant[p.ID])
		case stateOrphaned:
			r.Outcome = domain.OutcomeSkipped
			r.Notes = append(r.Notes, fmt.Sprintf("depends on %s which did not apply", redundant[p.ID]))
		case stateNoGeneration:
			r.Outcome = domain.OutcomeSkipped
			r.Notes = append(r.Notes, "no generated text")
		case stateActive:
			r.Outcome = domain.OutcomeApplied
			r.Diff = strings.Join(diffs[i], "")
			r.Stat = diffStat(r.Diff)
			r.Notes = append(r.Notes, notes[i]...)
		}
		out.Results[i] = r
	}
	return out, nil, nil
}

func baseResult(p domain.FixPlan) domain.FixResult {
	r := domain.FixResult{
		PlanID: p.ID,
		RuleID: p.Violation.RuleID,
		Path:   p.Violation.Path,
		Member: p.Violation.Member,
		Span:   p.Violation.Span,
		Notes:  append([]string(nil), p.Notes...),
	}
	if p.Target != nil {
		r.Target = p.Target.Name
	}
	return r
}

func reportNote(p domain.FixPlan) string {
	if p.Violation.Advisory {
		return "advisory, no change proposed"
	}
	return "no relocation strategy for layer " + string(p.Violation.Layer)
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}
