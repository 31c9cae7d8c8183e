package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/abdidvp/layerfix/internal/domain"
)

// streamOps are collection pipeline steps that filter or aggregate data.
var streamOps = map[string]bool{
	"filter": true, "reduce": true, "sum": true, "average": true, "count": true,
	"min": true, "max": true, "anyMatch": true, "allMatch": true, "noneMatch": true,
	"sorted": true, "groupingBy": true, "partitioningBy": true, "summingDouble": true,
	"summingInt": true, "averagingDouble": true, "mapToDouble": true, "mapToInt": true,
}

var ioPrefixes = []string{
	"find", "save", "delete", "persist", "merge", "flush", "query", "execute",
	"fetch", "load", "send", "publish", "exists", "count",
}

var ioReceiverSuffixes = []string{"repository", "repo", "dao", "client", "template", "entitymanager", "gateway"}

// bodyWalker extracts call sites and structural facts from one member body.
type bodyWalker struct {
	f      *file
	fields map[string]bool
	locals map[string]bool
	calls  []domain.CallSite
	facts  domain.Facts
}

func newBodyWalker(f *file, fields map[string]bool, params []domain.Param) *bodyWalker {
	w := &bodyWalker{f: f, fields: fields, locals: map[string]bool{}}
	for _, p := range params {
		w.locals[p.Name] = true
	}
	return w
}

// collectLocals records every name declared inside the body so that reads of
// shadowing locals are not mistaken for field reads.
func (w *bodyWalker) collectLocals(n *sitter.Node) {
	switch n.Type() {
	case "local_variable_declaration":
		for _, name := range w.f.declaratorNames(n) {
			w.locals[name] = true
		}
	case "enhanced_for_statement", "catch_formal_parameter":
		if name := n.ChildByFieldName("name"); name != nil {
			w.locals[w.f.text(name)] = true
		}
	case "lambda_expression":
		params := n.ChildByFieldName("parameters")
		if params != nil {
			if params.Type() == "identifier" {
				w.locals[w.f.text(params)] = true
			} else {
				for i := 0; i < int(params.NamedChildCount()); i++ {
					p := params.NamedChild(i)
					if p.Type() == "identifier" {
						w.locals[w.f.text(p)] = true
					} else if name := p.ChildByFieldName("name"); name != nil {
						w.locals[w.f.text(name)] = true
					}
				}
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.collectLocals(n.NamedChild(i))
	}
}

func (w *bodyWalker) isOwnField(name string) bool {
	return w.fields[name] && !w.locals[name]
}

func (w *bodyWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "line_comment", "block_comment", "string_literal", "text_block":
		return
	case "identifier":
		if name := w.f.text(n); w.isOwnField(name) {
			w.facts.OwnFieldReads = appendUnique(w.facts.OwnFieldReads, name)
		}
		return
	case "field_access":
		obj := n.ChildByFieldName("object")
		if obj != nil && obj.Type() == "this" {
			w.facts.OwnFieldReads = appendUnique(w.facts.OwnFieldReads, w.f.text(n.ChildByFieldName("field")))
			return
		}
		w.walk(obj)
		return
	case "method_invocation":
		w.invocation(n)
		w.walk(n.ChildByFieldName("object"))
		w.walk(n.ChildByFieldName("arguments"))
		return
	case "variable_declarator":
		w.walk(n.ChildByFieldName("value"))
		return
	case "assignment_expression":
		w.assignment(n)
		return
	case "update_expression":
		w.update(n)
		return
	case "if_statement", "ternary_expression", "switch_expression", "switch_statement":
		w.facts.Conditionals++
	case "binary_expression":
		w.binary(n)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
}

func (w *bodyWalker) binary(n *sitter.Node) {
	op := w.f.text(n.ChildByFieldName("operator"))
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	switch op {
	case ">", "<", ">=", "<=", "==", "!=":
		if w.businessComparison(left, right) || w.businessComparison(right, left) {
			w.facts.BusinessComparisons = append(w.facts.BusinessComparisons, collapse(w.f.text(n)))
		}
	case "+", "-", "*", "/", "%":
		if w.isStringy(left) || w.isStringy(right) {
			return
		}
		w.facts.Arithmetic++
		if w.businessConstant(left) || w.businessConstant(right) {
			w.facts.BusinessArithmetic = append(w.facts.BusinessArithmetic, collapse(w.f.text(n)))
		}
	}
}

// businessComparison reports whether lit is a threshold compared against other.
// 0 and 1 count only when compared against a getter call.
func (w *bodyWalker) businessComparison(lit, other *sitter.Node) bool {
	v, ok := numericLiteral(lit, w.f.src)
	if !ok {
		return false
	}
	if IsBusinessConstant(v) {
		return true
	}
	return (v == 0 || v == 1) && w.isGetterCall(other)
}

func (w *bodyWalker) businessConstant(n *sitter.Node) bool {
	v, ok := numericLiteral(n, w.f.src)
	return ok && IsBusinessConstant(v)
}

func (w *bodyWalker) isGetterCall(n *sitter.Node) bool {
	if n == nil || n.Type() != "method_invocation" {
		return false
	}
	name := w.f.text(n.ChildByFieldName("name"))
	args := n.ChildByFieldName("arguments")
	if args != nil && args.NamedChildCount() > 0 {
		return false
	}
	return hasVerbPrefix(name, "get") || hasVerbPrefix(name, "is")
}

// isStringy reports whether n is a string literal or a concatenation with one.
func (w *bodyWalker) isStringy(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "string_literal", "text_block", "character_literal":
		return true
	case "parenthesized_expression":
		return n.NamedChildCount() == 1 && w.isStringy(n.NamedChild(0))
	case "binary_expression":
		if w.f.text(n.ChildByFieldName("operator")) != "+" {
			return false
		}
		return w.isStringy(n.ChildByFieldName("left")) || w.isStringy(n.ChildByFieldName("right"))
	}
	return false
}

func (w *bodyWalker) assignment(n *sitter.Node) {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	op := w.f.text(n.ChildByFieldName("operator"))
	w.write(n, left)
	if op != "=" {
		w.facts.Arithmetic++
		if w.businessConstant(right) {
			w.facts.BusinessArithmetic = append(w.facts.BusinessArithmetic, collapse(w.f.text(n)))
		}
	}
	w.walk(right)
}

func (w *bodyWalker) update(n *sitter.Node) {
	w.facts.Arithmetic++
	if n.NamedChildCount() > 0 {
		w.write(n, n.NamedChild(0))
	}
}

// write records a state change to target made by the expression n.
func (w *bodyWalker) write(n, target *sitter.Node) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		if name := w.f.text(target); w.isOwnField(name) {
			w.facts.OwnFieldWrites = appendUnique(w.facts.OwnFieldWrites, name)
		}
	case "field_access":
		obj := target.ChildByFieldName("object")
		if obj != nil && obj.Type() == "this" {
			w.facts.OwnFieldWrites = appendUnique(w.facts.OwnFieldWrites, w.f.text(target.ChildByFieldName("field")))
			return
		}
		w.facts.ExternalMutations = append(w.facts.ExternalMutations, collapse(w.f.text(n)))
		w.walk(obj)
	default:
		w.walk(target)
	}
}

func (w *bodyWalker) invocation(n *sitter.Node) {
	name := w.f.text(n.ChildByFieldName("name"))
	obj := n.ChildByFieldName("object")
	args := n.ChildByFieldName("arguments")

	call := domain.CallSite{
		Method: name,
		Args:   collapse(w.f.text(args)),
		Arity:  argCount(args),
		Span:   w.f.span(n),
	}
	if obj != nil {
		call.Receiver = collapse(w.f.text(obj))
	}
	w.calls = append(w.calls, call)

	if obj != nil && streamOps[name] {
		w.facts.StreamOps = appendUnique(w.facts.StreamOps, name)
	}
	if hasVerbPrefix(name, "set") && call.Arity > 0 {
		if obj == nil || obj.Type() == "this" {
			w.facts.OwnFieldWrites = appendUnique(w.facts.OwnFieldWrites, domain.LowerFirst(name[3:]))
		} else {
			w.facts.ExternalMutations = append(w.facts.ExternalMutations, collapse(w.f.text(n)))
		}
	}
}

func argCount(args *sitter.Node) int {
	if args == nil {
		return 0
	}
	count := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		switch args.NamedChild(i).Type() {
		case "line_comment", "block_comment":
		default:
			count++
		}
	}
	return count
}

// finish computes the statement-level facts once the walk is done.
func (w *bodyWalker) finish(body *sitter.Node) domain.Facts {
	var stmts []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		if c.Type() == "line_comment" || c.Type() == "block_comment" {
			continue
		}
		stmts = append(stmts, c)
	}
	w.facts.Statements = len(stmts)

	if len(stmts) == 1 && w.facts.Arithmetic == 0 && w.facts.Conditionals == 0 {
		var expr *sitter.Node
		switch stmts[0].Type() {
		case "return_statement", "expression_statement":
			if stmts[0].NamedChildCount() > 0 {
				expr = stmts[0].NamedChild(0)
			}
		}
		if expr != nil && expr.Type() == "method_invocation" && w.isPlainForward(expr) {
			start := int(expr.StartByte())
			for i := range w.calls {
				if w.calls[i].Span.Start == start && w.calls[i].Span.End == int(expr.EndByte()) {
					c := w.calls[i]
					w.facts.ForwardsTo = &c
					break
				}
			}
		}
	}
	return w.facts
}

// isPlainForward reports whether the invocation passes its arguments through
// untouched to a field or bare receiver.
func (w *bodyWalker) isPlainForward(n *sitter.Node) bool {
	obj := n.ChildByFieldName("object")
	if obj != nil {
		switch obj.Type() {
		case "identifier":
		case "field_access":
			if o := obj.ChildByFieldName("object"); o == nil || o.Type() != "this" {
				return false
			}
		default:
			return false
		}
	}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return true
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		switch args.NamedChild(i).Type() {
		case "identifier", "field_access", "this", "line_comment", "block_comment":
		default:
			return false
		}
	}
	return true
}

// deriveTags summarizes the facts of a callable member.
func deriveTags(m domain.Member) []domain.MemberTag {
	if !m.HasBody || m.Kind == domain.MemberField {
		return nil
	}
	f := m.Facts
	var tags []domain.MemberTag
	if f.Statements <= 1 && f.Conditionals == 0 && f.Arithmetic == 0 && len(m.Calls) == 0 {
		tags = append(tags, domain.TagPureAccessor)
	}
	if f.Arithmetic > 0 || len(f.StreamOps) > 0 {
		tags = append(tags, domain.TagCalculation)
	}
	if len(f.BusinessComparisons) > 0 {
		tags = append(tags, domain.TagBusinessConditional)
	}
	if len(f.ExternalMutations) > 0 || len(f.OwnFieldWrites) > 0 {
		tags = append(tags, domain.TagMutation)
	}
	for _, c := range m.Calls {
		if IsIOCall(c) {
			tags = append(tags, domain.TagIOCall)
			break
		}
	}
	return tags
}

// IsIOCall reports whether a call reaches persistence or another external
// system, judged by method verb or receiver name.
func IsIOCall(c domain.CallSite) bool {
	for _, p := range ioPrefixes {
		if c.Method == p || hasVerbPrefix(c.Method, p) {
			return true
		}
	}
	recv := strings.ToLower(c.Receiver)
	recv = strings.TrimPrefix(recv, "this.")
	for _, s := range ioReceiverSuffixes {
		if strings.HasSuffix(recv, s) {
			return true
		}
	}
	return false
}

// hasVerbPrefix reports whether name is verb followed by an upper-case letter.
func hasVerbPrefix(name, verb string) bool {
	if len(name) <= len(verb) || !strings.HasPrefix(name, verb) {
		return false
	}
	c := name[len(verb)]
	return c >= 'A' && c <= 'Z'
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
