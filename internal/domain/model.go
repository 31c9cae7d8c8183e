package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Layer is the architectural role a source unit plays.
type Layer string

const (
	LayerController   Layer = "controller"
	LayerService      Layer = "service"
	LayerRepository   Layer = "repository"
	LayerEntity       Layer = "entity"
	LayerUnclassified Layer = "unclassified"
)

// Layers enumerates the classified layers in precedence order.
var Layers = []Layer{LayerController, LayerRepository, LayerEntity, LayerService}

// Span locates a fragment of a file. Byte offsets are half-open [Start, End),
// lines are 1-based and inclusive.
type Span struct {
	Start     int `json:"start"`
	End       int `json:"end"`
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte. Two empty spans
// at the same offset overlap as well, since they compete for one insertion point.
func (s Span) Overlaps(o Span) bool {
	if s.Len() == 0 && o.Len() == 0 {
		return s.Start == o.Start
	}
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether o lies entirely inside s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Text returns the fragment of src covered by the span.
func (s Span) Text(src []byte) string {
	if s.Start < 0 || s.End > len(src) || s.Start > s.End {
		return ""
	}
	return string(src[s.Start:s.End])
}

type UnitKind string

const (
	UnitClass     UnitKind = "class"
	UnitInterface UnitKind = "interface"
	UnitEnum      UnitKind = "enum"
	UnitRecord    UnitKind = "record"
)

// Markers are the structural signals the layer classifier looks at.
type Markers struct {
	Annotations []string `json:"annotations,omitempty"`
	Supertypes  []string `json:"supertypes,omitempty"`
	NameTokens  []string `json:"name_tokens,omitempty"`
}

// HasAnnotation reports whether the unit carries one of the given annotations.
func (m Markers) HasAnnotation(names ...string) bool {
	return containsAny(m.Annotations, names)
}

// HasSupertype reports whether the unit extends or implements one of the given types.
func (m Markers) HasSupertype(names ...string) bool {
	return containsAny(m.Supertypes, names)
}

// SourceUnit is one top-level type declaration. It is a value: once parsed it is
// never mutated, patched text produces a new SourceUnit on re-parse.
type SourceUnit struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Package  string   `json:"package,omitempty"`
	Imports  []string `json:"imports,omitempty"`
	Kind     UnitKind `json:"kind"`
	Members  []Member `json:"members"`
	Span     Span     `json:"span"`
	BodySpan Span     `json:"body_span"`
	Markers  Markers  `json:"markers"`
	Layer    Layer    `json:"layer"`
}

// UnitID builds the identifier of a unit declared in path.
func UnitID(path, name string) string { return path + "#" + name }

// WithLayer returns a copy of the unit assigned to layer.
func (u SourceUnit) WithLayer(l Layer) SourceUnit {
	u.Layer = l
	return u
}

// Member looks up a member by id.
func (u SourceUnit) Member(id string) (Member, bool) {
	for _, m := range u.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// FindMethod looks up a method by name and arity.
func (u SourceUnit) FindMethod(name string, arity int) (Member, bool) {
	for _, m := range u.Members {
		if m.Kind == MemberMethod && m.Name == name && len(m.Params) == arity {
			return m, true
		}
	}
	return Member{}, false
}

// Fields returns the field members of the unit.
func (u SourceUnit) Fields() []Member {
	var out []Member
	for _, m := range u.Members {
		if m.Kind == MemberField {
			out = append(out, m)
		}
	}
	return out
}

// FieldOfType returns the first field declared with the given type name.
func (u SourceUnit) FieldOfType(typeName string) (Member, bool) {
	for _, m := range u.Fields() {
		if BaseType(m.ReturnType) == typeName {
			return m, true
		}
	}
	return Member{}, false
}

// HasField reports whether the unit declares a field with the given name.
func (u SourceUnit) HasField(name string) bool {
	for _, m := range u.Fields() {
		if m.Name == name {
			return true
		}
	}
	return false
}

type MemberKind string

const (
	MemberMethod      MemberKind = "method"
	MemberField       MemberKind = "field"
	MemberConstructor MemberKind = "constructor"
)

// MemberTag summarizes what a member does.
type MemberTag string

const (
	TagPureAccessor        MemberTag = "pure_accessor"
	TagCalculation         MemberTag = "calculation"
	TagBusinessConditional MemberTag = "conditional_with_business_term"
	TagMutation            MemberTag = "mutation"
	TagIOCall              MemberTag = "io_call"
)

type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CallSite is a method invocation found inside a member body.
type CallSite struct {
	Receiver string `json:"receiver,omitempty"`
	Method   string `json:"method"`
	Args     string `json:"args"`
	Arity    int    `json:"arity"`
	Span     Span   `json:"span"`
}

// Text renders the call as it appears in source (modulo whitespace).
func (c CallSite) Text() string {
	if c.Receiver == "" {
		return c.Method + c.Args
	}
	return c.Receiver + "." + c.Method + c.Args
}

// Facts is the structural evidence extracted from a member body. Tags and rule
// predicates are derived from it.
type Facts struct {
	// Comparisons against business constants, e.g. "order.getTotal() > 500".
	BusinessComparisons []string `json:"business_comparisons,omitempty"`
	// Arithmetic involving business constants, e.g. "total * 0.9".
	BusinessArithmetic []string `json:"business_arithmetic,omitempty"`
	// Any arithmetic expression.
	Arithmetic int `json:"arithmetic,omitempty"`
	// Number of if/ternary/switch constructs.
	Conditionals int `json:"conditionals,omitempty"`
	// Collection pipeline steps that filter or aggregate (filter, sum, reduce, ...).
	StreamOps []string `json:"stream_ops,omitempty"`
	// Own fields read (unqualified or via this).
	OwnFieldReads []string `json:"own_field_reads,omitempty"`
	// Own fields written.
	OwnFieldWrites []string `json:"own_field_writes,omitempty"`
	// State changes on objects other than this, e.g. "order.setTotal(...)".
	ExternalMutations []string `json:"external_mutations,omitempty"`
	// Set when the body is a single statement forwarding to one call.
	ForwardsTo *CallSite `json:"forwards_to,omitempty"`
	// Number of statements in the body.
	Statements int `json:"statements,omitempty"`
}

// Member is a method, constructor or field inside a SourceUnit.
type Member struct {
	ID          string      `json:"id"`
	UnitID      string      `json:"unit_id"`
	Name        string      `json:"name"`
	Kind        MemberKind  `json:"kind"`
	Signature   string      `json:"signature"`
	ReturnType  string      `json:"return_type,omitempty"`
	Params      []Param     `json:"params,omitempty"`
	Modifiers   []string    `json:"modifiers,omitempty"`
	Annotations []string    `json:"annotations,omitempty"`
	Span        Span        `json:"span"`
	BodySpan    Span        `json:"body_span"`
	HasBody     bool        `json:"has_body"`
	Calls       []CallSite  `json:"calls,omitempty"`
	Tags        []MemberTag `json:"tags,omitempty"`
	Facts       Facts       `json:"facts"`
	NameTokens  []string    `json:"name_tokens,omitempty"`
}

// MemberID builds the identifier of a method or constructor of unitID.
func MemberID(unitID, name string, arity int) string {
	return unitID + "." + name + "/" + strconv.Itoa(arity)
}

// FieldID builds the identifier of a field of unitID.
func FieldID(unitID, name string) string { return unitID + "." + name }

// Arity returns the number of declared parameters.
func (m Member) Arity() int { return len(m.Params) }

// HasTag reports whether the member carries tag.
func (m Member) HasTag(tag MemberTag) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasModifier reports whether the member carries the given keyword modifier.
func (m Member) HasModifier(mod string) bool {
	for _, x := range m.Modifiers {
		if x == mod {
			return true
		}
	}
	return false
}

// Project is the in-memory file tree submitted to a run: path -> source text.
type Project struct {
	Name  string            `json:"name,omitempty"`
	Root  string            `json:"root,omitempty"`
	Files map[string][]byte `json:"-"`
}

// Paths returns the project's file paths in sorted order.
func (p Project) Paths() []string {
	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// BaseType strips generics and array brackets: "List<Order>" -> "List".
func BaseType(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.IndexAny(t, "<["); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSpace(t)
}

// LowerFirst turns "OrderService" into "orderService".
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}
