package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/fatih/camelcase"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/abdidvp/layerfix/internal/domain"
)

// JavaParser implements domain.UnitParser using the tree-sitter Java grammar.
// A fresh sitter.Parser is created per call since parsers are not safe for
// concurrent use.
type JavaParser struct{}

func New() *JavaParser {
	return &JavaParser{}
}

var unitKinds = map[string]domain.UnitKind{
	"class_declaration":     domain.UnitClass,
	"interface_declaration": domain.UnitInterface,
	"enum_declaration":      domain.UnitEnum,
	"record_declaration":    domain.UnitRecord,
}

func (p *JavaParser) Parse(ctx context.Context, path string, src []byte) ([]domain.SourceUnit, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, &domain.ParseError{File: path, Message: "empty syntax tree"}
	}
	if root.HasError() {
		line, msg := firstError(root, src)
		return nil, &domain.ParseError{File: path, Line: line, Message: msg}
	}

	f := &file{path: path, src: src}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "package_declaration":
			f.pkg = f.qualifiedName(n)
		case "import_declaration":
			f.imports = append(f.imports, f.importName(n))
		}
	}

	var units []domain.SourceUnit
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if kind, ok := unitKinds[n.Type()]; ok {
			units = append(units, f.unit(n, kind))
		}
	}
	if len(units) == 0 {
		return nil, &domain.ParseError{File: path, Message: "no type declaration found"}
	}
	return units, nil
}

// firstError finds the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node, src []byte) (int, string) {
	if n.IsMissing() {
		return int(n.StartPoint().Row) + 1, fmt.Sprintf("missing %s", n.Type())
	}
	if n.IsError() {
		text := n.Content(src)
		if len(text) > 40 {
			text = text[:40] + "..."
		}
		return int(n.StartPoint().Row) + 1, fmt.Sprintf("syntax error near %q", strings.Join(strings.Fields(text), " "))
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !(c.HasError() || c.IsMissing()) {
			continue
		}
		return firstError(c, src)
	}
	return int(n.StartPoint().Row) + 1, "syntax error"
}

type file struct {
	path    string
	src     []byte
	pkg     string
	imports []string
}

func (f *file) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.src)
}

func (f *file) span(n *sitter.Node) domain.Span {
	return domain.Span{
		Start:     int(n.StartByte()),
		End:       int(n.EndByte()),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
}

func (f *file) qualifiedName(n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
			return f.text(c)
		}
	}
	return ""
}

func (f *file) importName(n *sitter.Node) string {
	s := strings.TrimSpace(f.text(n))
	s = strings.TrimPrefix(s, "import")
	s = strings.TrimSuffix(s, ";")
	return strings.Join(strings.Fields(s), " ")
}

func (f *file) unit(n *sitter.Node, kind domain.UnitKind) domain.SourceUnit {
	name := f.text(n.ChildByFieldName("name"))
	u := domain.SourceUnit{
		ID:      domain.UnitID(f.path, name),
		Name:    name,
		Path:    f.path,
		Package: f.pkg,
		Imports: f.imports,
		Kind:    kind,
		Span:    f.span(n),
		Layer:   domain.LayerUnclassified,
	}
	_, u.Markers.Annotations = f.modifiers(childOfType(n, "modifiers"))
	u.Markers.Supertypes = f.supertypes(n)
	u.Markers.NameTokens = Tokens(name)

	body := n.ChildByFieldName("body")
	if body == nil {
		return u
	}
	u.BodySpan = f.span(body)

	fields := map[string]bool{}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, p := range f.params(params) {
			fields[p.Name] = true
		}
	}
	decls := memberNodes(body)
	for _, d := range decls {
		if d.Type() == "field_declaration" || d.Type() == "constant_declaration" {
			for _, name := range f.declaratorNames(d) {
				fields[name] = true
			}
		}
	}

	for _, d := range decls {
		switch d.Type() {
		case "field_declaration", "constant_declaration":
			u.Members = append(u.Members, f.fields(u.ID, d)...)
		case "method_declaration":
			u.Members = append(u.Members, f.callable(u.ID, d, domain.MemberMethod, fields))
		case "constructor_declaration":
			u.Members = append(u.Members, f.callable(u.ID, d, domain.MemberConstructor, fields))
		}
	}
	return u
}

// memberNodes flattens class, interface and enum bodies into their declarations.
func memberNodes(body *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		if c.Type() == "enum_body_declarations" {
			out = append(out, memberNodes(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return c
		}
	}
	return nil
}

// modifiers splits a modifiers node into keywords and annotation names.
func (f *file) modifiers(n *sitter.Node) (keywords, annotations []string) {
	if n == nil {
		return nil, nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.Type() == "marker_annotation" || c.Type() == "annotation":
			annotations = append(annotations, domain.BaseType(f.text(c.ChildByFieldName("name"))))
		case !c.IsNamed():
			keywords = append(keywords, f.text(c))
		}
	}
	return keywords, annotations
}

func (f *file) supertypes(n *sitter.Node) []string {
	var out []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "superclass":
			if c.NamedChildCount() > 0 {
				out = append(out, domain.BaseType(f.text(c.NamedChild(0))))
			}
		case "super_interfaces", "extends_interfaces":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				list := c.NamedChild(j)
				if list.Type() != "type_list" {
					out = append(out, domain.BaseType(f.text(list)))
					continue
				}
				for k := 0; k < int(list.NamedChildCount()); k++ {
					out = append(out, domain.BaseType(f.text(list.NamedChild(k))))
				}
			}
		}
	}
	return out
}

func (f *file) declaratorNames(n *sitter.Node) []string {
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "variable_declarator" {
			names = append(names, f.text(c.ChildByFieldName("name")))
		}
	}
	return names
}

func (f *file) fields(unitID string, n *sitter.Node) []domain.Member {
	mods, annos := f.modifiers(childOfType(n, "modifiers"))
	typ := f.text(n.ChildByFieldName("type"))
	sig := collapse(strings.TrimSuffix(strings.TrimSpace(f.text(n)), ";"))
	var out []domain.Member
	for _, name := range f.declaratorNames(n) {
		out = append(out, domain.Member{
			ID:          domain.FieldID(unitID, name),
			UnitID:      unitID,
			Name:        name,
			Kind:        domain.MemberField,
			Signature:   sig,
			ReturnType:  typ,
			Modifiers:   mods,
			Annotations: annos,
			Span:        f.span(n),
			NameTokens:  Tokens(name),
		})
	}
	return out
}

func (f *file) params(n *sitter.Node) []domain.Param {
	if n == nil {
		return nil
	}
	var out []domain.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "formal_parameter":
			out = append(out, domain.Param{
				Name: f.text(c.ChildByFieldName("name")),
				Type: f.text(c.ChildByFieldName("type")),
			})
		case "spread_parameter":
			// Type... name: the declarator carries the name.
			p := domain.Param{}
			for j := 0; j < int(c.NamedChildCount()); j++ {
				g := c.NamedChild(j)
				switch g.Type() {
				case "variable_declarator":
					p.Name = f.text(g.ChildByFieldName("name"))
				case "modifiers":
				default:
					if p.Type == "" {
						p.Type = f.text(g) + "..."
					}
				}
			}
			out = append(out, p)
		}
	}
	return out
}

func (f *file) callable(unitID string, n *sitter.Node, kind domain.MemberKind, fields map[string]bool) domain.Member {
	name := f.text(n.ChildByFieldName("name"))
	params := f.params(n.ChildByFieldName("parameters"))
	mods, annos := f.modifiers(childOfType(n, "modifiers"))

	m := domain.Member{
		ID:          domain.MemberID(unitID, name, len(params)),
		UnitID:      unitID,
		Name:        name,
		Kind:        kind,
		Signature:   f.signature(n, mods),
		ReturnType:  f.text(n.ChildByFieldName("type")),
		Params:      params,
		Modifiers:   mods,
		Annotations: annos,
		Span:        f.span(n),
		NameTokens:  Tokens(name),
	}

	if body := n.ChildByFieldName("body"); body != nil {
		m.HasBody = true
		m.BodySpan = f.span(body)
		w := newBodyWalker(f, fields, params)
		w.collectLocals(body)
		w.walk(body)
		m.Calls = w.calls
		m.Facts = w.finish(body)
	}
	m.Tags = deriveTags(m)
	return m
}

// signature renders keyword modifiers, type, name, parameters and throws
// clause on one line, without annotations.
func (f *file) signature(n *sitter.Node, mods []string) string {
	start := n.StartByte()
	if m := childOfType(n, "modifiers"); m != nil {
		start = m.EndByte()
	}
	end := n.EndByte()
	if body := n.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	sig := collapse(strings.TrimSuffix(strings.TrimSpace(string(f.src[start:end])), ";"))
	if len(mods) > 0 {
		sig = strings.Join(mods, " ") + " " + sig
	}
	return sig
}

// Tokens splits an identifier into lower-case camel-case words.
func Tokens(name string) []string {
	var out []string
	for _, t := range camelcase.Split(name) {
		t = strings.ToLower(strings.TrimFunc(t, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// numericLiteral returns the value of a (possibly negated) numeric literal.
func numericLiteral(n *sitter.Node, src []byte) (float64, bool) {
	if n == nil {
		return 0, false
	}
	switch n.Type() {
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return numericLiteral(n.NamedChild(0), src)
		}
	case "unary_expression":
		op := n.ChildByFieldName("operator")
		if v, ok := numericLiteral(n.ChildByFieldName("operand"), src); ok && op != nil {
			switch op.Content(src) {
			case "-":
				return -v, true
			case "+":
				return v, true
			}
		}
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		s := strings.TrimRight(strings.ReplaceAll(n.Content(src), "_", ""), "lL")
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return float64(i), true
		}
	case "decimal_floating_point_literal":
		s := strings.TrimRight(strings.ReplaceAll(n.Content(src), "_", ""), "fFdD")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// IsBusinessConstant reports whether v is a literal that encodes a business
// rule: anything but 0, 1 and -1.
func IsBusinessConstant(v float64) bool {
	return v != 0 && v != 1 && v != -1
}
