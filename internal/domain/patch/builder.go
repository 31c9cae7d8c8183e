package patch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

const (
	annotationAutowired = "org.springframework.beans.factory.annotation.Autowired"
	annotationService   = "org.springframework.stereotype.Service"
	memberIndent        = "    "
)

// builder computes the edits of one round against the original text.
type builder struct {
	in      Input
	states  []planState
	files   map[string][]byte
	units   map[string][]domain.SourceUnit
	byName  map[string]domain.SourceUnit
	created map[string]bool

	// fields tracks, per unit, the declared or injected field name of a type.
	fields map[string]map[string]string
	// imports tracks, per file, the imports present or added this round.
	imports map[string]map[string]bool
}

func newBuilder(in Input, states []planState) *builder {
	b := &builder{
		in:      in,
		states:  states,
		files:   map[string][]byte{},
		units:   map[string][]domain.SourceUnit{},
		byName:  map[string]domain.SourceUnit{},
		created: map[string]bool{},
		fields:  map[string]map[string]string{},
		imports: map[string]map[string]bool{},
	}
	for p, src := range in.Files {
		b.files[p] = src
	}
	for _, u := range in.Units {
		b.units[u.Path] = append(b.units[u.Path], u)
		if _, ok := b.byName[u.Name]; !ok {
			b.byName[u.Name] = u
		}
	}
	return b
}

func (b *builder) unit(path, name string) (domain.SourceUnit, bool) {
	for _, u := range b.units[path] {
		if u.Name == name {
			return u, true
		}
	}
	return domain.SourceUnit{}, false
}

// target returns the unit receiving relocated code, materializing a service
// skeleton the first time a new target is seen.
func (b *builder) target(t domain.TargetUnit) (domain.SourceUnit, error) {
	if u, ok := b.unit(t.Path, t.Name); ok {
		return u, nil
	}
	if !t.IsNew {
		return domain.SourceUnit{}, fmt.Errorf("target %s not found in %s", t.Name, t.Path)
	}
	if _, exists := b.files[t.Path]; exists {
		return domain.SourceUnit{}, fmt.Errorf("target file %s exists but declares no %s", t.Path, t.Name)
	}
	text, u := skeleton(t)
	b.files[t.Path] = []byte(text)
	b.units[t.Path] = []domain.SourceUnit{u}
	b.created[t.Path] = true
	return u, nil
}

// skeleton renders an empty service class.
func skeleton(t domain.TargetUnit) (string, domain.SourceUnit) {
	var sb strings.Builder
	if t.Package != "" {
		fmt.Fprintf(&sb, "package %s;\n\n", t.Package)
	}
	imports := []string{annotationAutowired, annotationService}
	for _, imp := range imports {
		fmt.Fprintf(&sb, "import %s;\n", imp)
	}
	sb.WriteString("\n@Service\n")
	start := sb.Len()
	fmt.Fprintf(&sb, "public class %s {\n", t.Name)
	open := sb.Len() - 2
	sb.WriteString("}\n")
	end := sb.Len() - 1

	u := domain.SourceUnit{
		ID:       domain.UnitID(t.Path, t.Name),
		Name:     t.Name,
		Path:     t.Path,
		Package:  t.Package,
		Imports:  imports,
		Kind:     domain.UnitClass,
		Span:     domain.Span{Start: start, End: end},
		BodySpan: domain.Span{Start: open, End: end},
		Markers:  domain.Markers{Annotations: []string{"Service"}},
		Layer:    domain.LayerService,
	}
	return sb.String(), u
}

func (b *builder) planEdits(i int) ([]edit, []string, error) {
	p := b.in.Plans[i]
	g := b.in.Generations[p.ID]
	v := p.Violation

	src, ok := b.unit(v.Path, v.Unit)
	if !ok {
		return nil, nil, fmt.Errorf("source unit %s not found", v.Unit)
	}
	member, ok := src.Member(v.MemberID)
	if !ok {
		return nil, nil, fmt.Errorf("member %s not found", v.Member)
	}
	if strings.TrimSpace(g.RelocatedMethod) == "" {
		return nil, nil, fmt.Errorf("empty relocated method")
	}
	tgt, err := b.target(*p.Target)
	if err != nil {
		return nil, nil, err
	}
	if tgt.Path == src.Path && tgt.Name == src.Name {
		return nil, nil, fmt.Errorf("target %s is the source unit", tgt.Name)
	}

	var edits []edit
	var notes []string

	// Target: dependency fields, then the relocated method.
	renames := map[string]string{}
	for _, d := range p.Dependencies {
		name, es := b.injectField(tgt, d.Type, d.Var)
		edits = append(edits, es...)
		edits = append(edits, b.importType(tgt, d.Type, src)...)
		if name != d.Var {
			renames[d.Var] = name
		}
	}
	method := rewriteRelocatedCalls(g.RelocatedMethod, p, b.sameTarget(i))
	for from, to := range renames {
		method = renameIdent(method, from, to)
	}
	edits = append(edits, b.referencedImports(tgt, src, method)...)
	edits = append(edits, appendEdit(i, tgt, b.files[tgt.Path], method))

	// Source: delegate or remove the member.
	text := b.files[src.Path]
	switch p.Mode {
	case domain.ModeDelegate:
		svc, es := b.injectField(src, tgt.Name, p.ServiceVar)
		edits = append(edits, es...)
		edits = append(edits, b.importUnit(src, tgt)...)
		edits = append(edits, edit{
			kind:   replaceMember,
			file:   src.Path,
			plan:   i,
			start:  member.Span.Start,
			end:    member.Span.End,
			expect: member.Span.Text(text),
			text:   delegation(text, member, g.SourceReplacement, svc, p.NewMethod),
			unit:   src.Name,
			member: member.Name,
			arity:  member.Arity(),
		})
	case domain.ModeRelocate:
		if callers := b.receiverlessCallers(i, src, member); len(callers) > 0 {
			return nil, nil, fmt.Errorf("%s is still called without a receiver by %s", member.Name, strings.Join(callers, ", "))
		}
		s, e := removalSpan(text, member.Span)
		edits = append(edits, edit{
			kind:   removeMember,
			file:   src.Path,
			plan:   i,
			start:  s,
			end:    e,
			expect: string(text[s:e]),
			unit:   src.Name,
			member: member.Name,
			arity:  member.Arity(),
		})
	}

	// Callers.
	for _, cs := range p.CallSites {
		if owner := b.superseding(i, cs); owner != "" {
			notes = append(notes, fmt.Sprintf("call in %s.%s superseded by %s", cs.UnitName, cs.MemberName, owner))
			continue
		}
		caller, ok := b.unit(cs.Path, cs.UnitName)
		if !ok {
			return nil, nil, fmt.Errorf("caller %s not found", cs.UnitName)
		}
		var es []edit
		svc := ""
		if caller.Path != tgt.Path || caller.Name != tgt.Name {
			if caller.Kind == domain.UnitInterface {
				return nil, nil, fmt.Errorf("cannot inject %s into interface %s", tgt.Name, caller.Name)
			}
			svc, es = b.injectField(caller, tgt.Name, p.ServiceVar)
			es = append(es, b.importUnit(caller, tgt)...)
		}
		edits = append(edits, es...)
		callText := b.files[cs.Path]
		edits = append(edits, edit{
			kind:   rewriteCall,
			file:   cs.Path,
			plan:   i,
			start:  cs.Call.Span.Start,
			end:    cs.Call.Span.End,
			expect: cs.Call.Span.Text(callText),
			text:   callRewrite(cs, svc, p.NewMethod),
			unit:   cs.UnitName,
			member: cs.MemberName,
			arity:  cs.MemberArgs,
		})
	}
	return edits, notes, nil
}

// superseding returns the id of another active plan whose member contains
// the call site, which makes rewriting the call pointless.
func (b *builder) superseding(i int, cs domain.CallSiteRef) string {
	for j, q := range b.in.Plans {
		if j == i || b.states[j] != stateActive {
			continue
		}
		if q.Violation.Path == cs.Path && q.Violation.Span.Contains(cs.Call.Span) {
			return q.ID
		}
	}
	return ""
}

// receiverlessCallers lists the members of src that call m without a
// receiver and are not rewritten by another active plan.
func (b *builder) receiverlessCallers(i int, src domain.SourceUnit, m domain.Member) []string {
	var out []string
	for _, caller := range src.Members {
		if !caller.HasBody || caller.ID == m.ID {
			continue
		}
		for _, c := range caller.Calls {
			if c.Method != m.Name || c.Arity != m.Arity() || (c.Receiver != "" && c.Receiver != "this") {
				continue
			}
			if b.superseding(i, domain.CallSiteRef{Path: src.Path, Call: c}) != "" {
				continue
			}
			out = append(out, caller.Name)
			break
		}
	}
	return out
}

// sameTarget lists the other active relocations that land in the target of
// plan i.
func (b *builder) sameTarget(i int) []domain.FixPlan {
	p := b.in.Plans[i]
	var out []domain.FixPlan
	for j, q := range b.in.Plans {
		if j == i || b.states[j] != stateActive || q.Mode != domain.ModeRelocate {
			continue
		}
		if q.Target.Path == p.Target.Path && q.Target.Name == p.Target.Name {
			out = append(out, q)
		}
	}
	return out
}

// injectField returns the name under which u holds a typ, adding an
// autowired field when it has none.
func (b *builder) injectField(u domain.SourceUnit, typ, name string) (string, []edit) {
	key := u.ID
	known, ok := b.fields[key]
	if !ok {
		known = map[string]string{}
		for _, f := range u.Fields() {
			if _, dup := known[domain.BaseType(f.ReturnType)]; !dup {
				known[domain.BaseType(f.ReturnType)] = f.Name
			}
		}
		b.fields[key] = known
	}
	if existing, ok := known[typ]; ok {
		return existing, nil
	}
	known[typ] = name

	text := b.files[u.Path]
	open := u.BodySpan.Start
	decl := fmt.Sprintf("{\n\n%s@Autowired\n%sprivate %s %s;", memberIndent, memberIndent, typ, name)
	edits := []edit{{
		kind:   addField,
		file:   u.Path,
		start:  open,
		end:    open + 1,
		expect: string(text[open : open+1]),
		text:   decl,
		unit:   u.Name,
	}}
	return name, append(edits, b.ensureImport(u.Path, annotationAutowired)...)
}

// importUnit imports target into u when they live in different packages.
func (b *builder) importUnit(u, target domain.SourceUnit) []edit {
	if target.Package == "" || target.Package == u.Package {
		return nil
	}
	return b.ensureImport(u.Path, target.Package+"."+target.Name)
}

// importType imports a dependency type into the target, resolving it through
// the project units first and the source imports second.
func (b *builder) importType(tgt domain.SourceUnit, typ string, src domain.SourceUnit) []edit {
	if u, ok := b.byName[typ]; ok {
		return b.importUnit(tgt, u)
	}
	for _, imp := range src.Imports {
		if strings.HasSuffix(imp, "."+typ) {
			return b.ensureImport(tgt.Path, imp)
		}
	}
	return nil
}

var identPattern = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// referencedImports carries over the source imports and project types the
// relocated text mentions by simple name.
func (b *builder) referencedImports(tgt, src domain.SourceUnit, method string) []edit {
	words := map[string]bool{}
	for _, w := range identPattern.FindAllString(method, -1) {
		words[w] = true
	}
	var edits []edit
	for _, imp := range src.Imports {
		if strings.HasPrefix(imp, "static ") || strings.HasSuffix(imp, ".*") {
			continue
		}
		if words[imp[strings.LastIndex(imp, ".")+1:]] {
			edits = append(edits, b.ensureImport(tgt.Path, imp)...)
		}
	}
	names := make([]string, 0, len(words))
	for w := range words {
		names = append(names, w)
	}
	sort.Strings(names)
	for _, w := range names {
		if u, ok := b.byName[w]; ok {
			edits = append(edits, b.importUnit(tgt, u)...)
		}
	}
	return edits
}

// ensureImport adds an import to a file unless it is already present.
func (b *builder) ensureImport(file, qualified string) []edit {
	have, ok := b.imports[file]
	if !ok {
		have = map[string]bool{}
		for _, u := range b.units[file] {
			for _, imp := range u.Imports {
				have[imp] = true
			}
		}
		b.imports[file] = have
	}
	pkg := qualified[:max(strings.LastIndex(qualified, "."), 0)]
	if have[qualified] || have[pkg+".*"] || pkg == "java.lang" {
		return nil
	}
	have[qualified] = true

	pos, hasImports := importPoint(b.files[file])
	line := "import " + qualified + ";\n"
	if !hasImports {
		line = "\n" + line
	}
	return []edit{{kind: addImport, file: file, start: pos, end: pos, text: line}}
}

// importPoint is the offset after the last import line, or after the package
// line when the file has no imports.
func importPoint(src []byte) (int, bool) {
	pos, pkgEnd, found := 0, 0, false
	offset := 0
	for _, line := range strings.SplitAfter(string(src), "\n") {
		trimmed := strings.TrimSpace(line)
		offset += len(line)
		switch {
		case strings.HasPrefix(trimmed, "import "):
			pos, found = offset, true
		case strings.HasPrefix(trimmed, "package "):
			pkgEnd = offset
		}
	}
	if found {
		return pos, true
	}
	return pkgEnd, false
}

func appendEdit(i int, tgt domain.SourceUnit, text []byte, method string) edit {
	closing := tgt.BodySpan.End - 1
	return edit{
		kind:   appendMethod,
		file:   tgt.Path,
		plan:   i,
		start:  closing,
		end:    closing,
		expect: string(text[closing : closing+1]),
		text:   "\n" + reindent(method, memberIndent) + "\n",
		unit:   tgt.Name,
	}
}

// removalSpan widens a member span to whole lines, taking the line comments
// directly above it along.
func removalSpan(src []byte, s domain.Span) (int, int) {
	start, end := s.Start, s.End
	ls := lineStart(src, start)
	if strings.TrimSpace(string(src[ls:start])) != "" {
		return start, end
	}
	start = ls
	for start > 0 {
		prev := lineStart(src, start-1)
		if !strings.HasPrefix(strings.TrimSpace(string(src[prev:start])), "//") {
			break
		}
		start = prev
	}
	for end < len(src) && (src[end] == ' ' || src[end] == '\t' || src[end] == '\r') {
		end++
	}
	if end < len(src) && src[end] == '\n' {
		end++
	}
	// Keep a single blank line between the neighbours.
	if start > 0 && blankLine(src, lineStart(src, start-1), start) && blankLine(src, end, lineEnd(src, end)) {
		start = lineStart(src, start-1)
	}
	return start, end
}

func lineEnd(src []byte, pos int) int {
	for pos < len(src) && src[pos] != '\n' {
		pos++
	}
	if pos < len(src) {
		pos++
	}
	return pos
}

func blankLine(src []byte, from, to int) bool {
	return from < to && strings.TrimSpace(string(src[from:to])) == ""
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

// delegation renders the member that replaces a delegated one. A generated
// replacement wins; otherwise the original header is kept and the body
// forwards to the service.
func delegation(src []byte, m domain.Member, generated, svc, method string) string {
	ind := string(src[lineStart(src, m.Span.Start):m.Span.Start])
	if strings.TrimSpace(ind) != "" {
		ind = ""
	}
	if strings.TrimSpace(generated) != "" {
		return strings.TrimPrefix(reindent(generated, ind), ind)
	}

	args := make([]string, len(m.Params))
	for i, p := range m.Params {
		args[i] = p.Name
	}
	call := fmt.Sprintf("%s.%s(%s);", svc, method, strings.Join(args, ", "))
	if m.ReturnType != "" && m.ReturnType != "void" {
		call = "return " + call
	}
	header := strings.TrimRight(string(src[m.Span.Start:m.BodySpan.Start]), " \t")
	return fmt.Sprintf("%s {\n%s%s%s\n%s}", header, ind, memberIndent, call, ind)
}

// callRewrite renders the call that replaces cs. An empty service name means
// the call is made from inside the target itself.
func callRewrite(cs domain.CallSiteRef, svc, method string) string {
	args := cs.Call.Args
	if cs.PassReceiver {
		inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(args, "("), ")"))
		if inner == "" {
			args = "(" + cs.Call.Receiver + ")"
		} else {
			args = "(" + cs.Call.Receiver + ", " + inner + ")"
		}
	}
	if svc == "" {
		return method + args
	}
	return svc + "." + method + args
}

// rewriteRelocatedCalls adjusts calls inside relocated text that point at
// methods relocated into the same target by other plans: repository calls
// become plain calls, entity calls take the entity as first argument.
func rewriteRelocatedCalls(text string, p domain.FixPlan, peers []domain.FixPlan) string {
	for _, q := range peers {
		m := regexp.QuoteMeta(q.NewMethod)
		if q.Violation.Layer == domain.LayerEntity {
			re := regexp.MustCompile(`(^|[^\w$.])([A-Za-z_$][\w$]*)\.` + m + `\(\s*(\))?`)
			text = re.ReplaceAllStringFunc(text, func(s string) string {
				sub := re.FindStringSubmatch(s)
				if sub[2] == "this" {
					return s
				}
				if sub[3] != "" {
					return sub[1] + q.NewMethod + "(" + sub[2] + ")"
				}
				return sub[1] + q.NewMethod + "(" + sub[2] + ", "
			})
			continue
		}
		receivers := []string{domain.LowerFirst(q.Violation.Unit)}
		for _, d := range append(append([]domain.Dependency(nil), p.Dependencies...), q.Dependencies...) {
			if d.Type == q.Violation.Unit {
				receivers = append(receivers, d.Var)
			}
		}
		for i, r := range receivers {
			receivers[i] = regexp.QuoteMeta(r)
		}
		re := regexp.MustCompile(`(^|[^\w$.])(?:this\.)?(?:` + strings.Join(receivers, "|") + `)\s*\.\s*` + m + `\(`)
		text = re.ReplaceAllString(text, "${1}"+q.NewMethod+"(")
	}
	return text
}

// renameIdent replaces a bare identifier, leaving member accesses alone.
func renameIdent(text, from, to string) string {
	re := regexp.MustCompile(`(^|[^\w$.])` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllString(text, "${1}"+to)
}

// reindent strips the common indentation of code and prefixes every line
// with indent. A flush first line takes the indentation of the last line,
// which is how fragments cut out of a class usually look.
func reindent(code, indent string) string {
	lines := strings.Split(strings.TrimRight(strings.Trim(code, "\n"), " \t\n"), "\n")
	width := func(s string) int { return len(s) - len(strings.TrimLeft(s, " \t")) }

	base := -1
	for i, l := range lines {
		if i == 0 || strings.TrimSpace(l) == "" {
			continue
		}
		if w := width(l); base < 0 || w < base {
			base = w
		}
	}
	if first := width(lines[0]); base < 0 || first < base && first > 0 {
		base = first
	}

	var sb strings.Builder
	for i, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if l == "" {
			if i > 0 {
				sb.WriteString("\n")
			}
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		strip := min(width(l), base)
		if i == 0 {
			strip = width(l)
		}
		sb.WriteString(indent)
		sb.WriteString(l[strip:])
	}
	return sb.String()
}

// jobs groups the round's edits per file. Created files start from their
// skeleton.
func (b *builder) jobs(edits map[int][]edit) []fileJob {
	byFile := map[string][]edit{}
	for i, es := range edits {
		for _, e := range es {
			e.plan = i
			byFile[e.file] = append(byFile[e.file], e)
		}
	}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	jobs := make([]fileJob, 0, len(paths))
	for _, p := range paths {
		jobs = append(jobs, newFileJob(p, b.files[p], b.created[p], byFile[p]))
	}
	return jobs
}
