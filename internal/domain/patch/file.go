package patch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

type editKind int

const (
	replaceMember editKind = iota
	removeMember
	appendMethod
	addField
	addImport
	rewriteCall
)

func (k editKind) String() string {
	switch k {
	case replaceMember:
		return "member replacement"
	case removeMember:
		return "member removal"
	case appendMethod:
		return "method insertion"
	case addField:
		return "field insertion"
	case addImport:
		return "import"
	case rewriteCall:
		return "call rewrite"
	}
	return "edit"
}

// edit replaces [start, end) of a file with text. expect is the text that
// must be found at start before the edit applies; for insertions it is the
// byte that follows the insertion point.
type edit struct {
	kind   editKind
	file   string
	plan   int
	start  int
	end    int
	expect string
	text   string

	// Re-map keys: the enclosing unit and, for member and call edits, the
	// member by name and arity.
	unit   string
	member string
	arity  int
}

type fileJob struct {
	path     string
	original []byte
	created  bool
	// groups holds the edits of each plan, in application order.
	groups [][]edit
}

// newFileJob orders the plans of a file by the first offset they touch, ties
// broken by detection order, and each plan's edits by offset.
func newFileJob(path string, original []byte, created bool, edits []edit) fileJob {
	byPlan := map[int][]edit{}
	for _, e := range edits {
		byPlan[e.plan] = append(byPlan[e.plan], e)
	}
	plans := make([]int, 0, len(byPlan))
	first := map[int]int{}
	for i, es := range byPlan {
		sort.SliceStable(es, func(a, b int) bool { return es[a].start < es[b].start })
		plans = append(plans, i)
		first[i] = es[0].start
	}
	sort.Slice(plans, func(a, b int) bool {
		if first[plans[a]] != first[plans[b]] {
			return first[plans[a]] < first[plans[b]]
		}
		return plans[a] < plans[b]
	})

	job := fileJob{path: path, original: original, created: created}
	for _, i := range plans {
		job.groups = append(job.groups, byPlan[i])
	}
	return job
}

type fileOutcome struct {
	text   []byte
	order  []int
	diffs  map[int]string
	notes  map[int][]string
	failed map[int]error
}

// applyFile applies the job's edits serially. Pending edits are shifted as
// earlier edits change the text; an edit whose expected text is no longer in
// place is re-mapped by re-parsing the current text. The first plan that
// cannot be placed stops the file.
func applyFile(ctx context.Context, parser domain.UnitParser, job fileJob) (fileOutcome, error) {
	out := fileOutcome{
		diffs:  map[int]string{},
		notes:  map[int][]string{},
		failed: map[int]error{},
	}

	var pending []*edit
	for g := range job.groups {
		for k := range job.groups[g] {
			pending = append(pending, &job.groups[g][k])
		}
	}

	cur := append([]byte(nil), job.original...)
	next := 0
	for g, group := range job.groups {
		plan := group[0].plan
		before := cur
		if job.created && g == 0 {
			before = nil
		}
		for range group {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			e := pending[next]
			next++
			if !e.matches(cur) {
				ok, err := e.remap(ctx, parser, job.path, cur)
				if err != nil {
					return out, err
				}
				if !ok {
					out.failed[plan] = fmt.Errorf("%s in %s: expected text not found", e.kind, e.unit)
					out.text = job.original
					return out, nil
				}
				out.notes[plan] = append(out.notes[plan], fmt.Sprintf("%s in %s re-mapped after drift", e.kind, job.path))
			}
			cur = splice(cur, e.start, e.end, e.text)
			shift(pending[next:], e.start, e.end, len(e.text))
		}
		d, err := unifiedDiff(job.path, before, cur, job.created && g == 0)
		if err != nil {
			return out, fmt.Errorf("diffing %s: %w", job.path, err)
		}
		out.diffs[plan] = d
		out.order = append(out.order, plan)
	}
	out.text = cur
	return out, nil
}

func (e *edit) matches(cur []byte) bool {
	if e.start < 0 || e.start+len(e.expect) > len(cur) {
		return false
	}
	return string(cur[e.start:e.start+len(e.expect)]) == e.expect
}

// remap relocates the edit in the current text.
func (e *edit) remap(ctx context.Context, parser domain.UnitParser, path string, cur []byte) (bool, error) {
	if e.kind == addImport {
		pos, _ := importPoint(cur)
		e.start, e.end = pos, pos
		return true, nil
	}
	units, err := parser.Parse(ctx, path, cur)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	var u domain.SourceUnit
	found := false
	for _, x := range units {
		if x.Name == e.unit {
			u, found = x, true
			break
		}
	}
	if !found {
		return false, nil
	}

	switch e.kind {
	case appendMethod:
		e.start, e.end = u.BodySpan.End-1, u.BodySpan.End-1
		e.expect = "}"
	case addField:
		e.start, e.end = u.BodySpan.Start, u.BodySpan.Start+1
		e.expect = "{"
	case replaceMember, removeMember:
		m, ok := u.FindMethod(e.member, e.arity)
		if !ok {
			return false, nil
		}
		e.start, e.end = m.Span.Start, m.Span.End
		if e.kind == removeMember {
			e.start, e.end = removalSpan(cur, m.Span)
		}
		e.expect = string(cur[e.start:e.end])
	case rewriteCall:
		m, ok := u.FindMethod(e.member, e.arity)
		if !ok {
			return false, nil
		}
		body := string(cur[m.Span.Start:m.Span.End])
		if strings.Count(body, e.expect) != 1 {
			return false, nil
		}
		e.start = m.Span.Start + strings.Index(body, e.expect)
		e.end = e.start + len(e.expect)
	}
	return e.matches(cur), nil
}

func splice(src []byte, start, end int, text string) []byte {
	out := make([]byte, 0, len(src)-(end-start)+len(text))
	out = append(out, src[:start]...)
	out = append(out, text...)
	return append(out, src[end:]...)
}

// shift moves pending edits located after a replaced range. Edits that
// overlap it stay put and are caught by the expected-text check.
func shift(pending []*edit, start, end, n int) {
	delta := n - (end - start)
	for _, q := range pending {
		if q.start >= end {
			q.start += delta
			q.end += delta
		}
	}
}
