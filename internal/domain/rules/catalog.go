// Package rules holds the closed catalog of layering rules and the detector
// that matches parsed units against it.
package rules

import (
	"sort"
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

const (
	RepositoryBusinessLogic = "BL001"
	RepositoryMutation      = "BL002"
	ControllerBusinessRule  = "BL003"
	EntityBusinessRule      = "BL004"
	AnemicService           = "BL005"
)

// DefaultBusinessTerms is the vocabulary that marks a name as encoding a
// business concept.
var DefaultBusinessTerms = []string{
	"approve", "approval", "bestseller", "bonus", "commission", "coupon", "discount",
	"eligible", "featured", "fraud", "loyalty", "overdue", "penalty", "premium",
	"promo", "promotion", "rebate", "reward", "tax", "threshold", "tier", "vip",
}

// matchFunc returns the evidence for a match, or nil.
type matchFunc func(c *Catalog, u domain.SourceUnit, m domain.Member) []string

// Rule is one entry of the catalog. Rules are immutable once the catalog is built.
type Rule struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Layers      []domain.Layer  `json:"layers"`
	Severity    domain.Severity `json:"severity"`
	TargetLayer domain.Layer    `json:"target_layer,omitempty"`
	Rationale   string          `json:"rationale"`
	Source      string          `json:"source,omitempty"`

	match matchFunc
}

// Advisory reports whether the rule only reports and never relocates.
func (r Rule) Advisory() bool { return r.TargetLayer == "" }

func builtin() []Rule {
	return []Rule{
		{
			ID:          RepositoryBusinessLogic,
			Title:       "Business logic in repository",
			Layers:      []domain.Layer{domain.LayerRepository},
			Severity:    domain.SeverityError,
			TargetLayer: domain.LayerService,
			Rationale: "Repositories move data between storage and the domain. Filtering, aggregation " +
				"and calculations on fetched data, and queries named after business concepts, belong in a service.",
			match: matchRepositoryLogic,
		},
		{
			ID:          RepositoryMutation,
			Title:       "Entity mutation in repository",
			Layers:      []domain.Layer{domain.LayerRepository},
			Severity:    domain.SeverityError,
			TargetLayer: domain.LayerService,
			Rationale:   "A repository must not change the state of the entities it handles; state changes are business decisions owned by the service layer.",
			match:       matchRepositoryMutation,
		},
		{
			ID:          ControllerBusinessRule,
			Title:       "Business rule in controller",
			Layers:      []domain.Layer{domain.LayerController},
			Severity:    domain.SeverityError,
			TargetLayer: domain.LayerService,
			Rationale:   "Controllers translate requests into service calls. Thresholds, calculations and domain state changes belong in a service.",
			match:       matchControllerRule,
		},
		{
			ID:          EntityBusinessRule,
			Title:       "Business rule in entity",
			Layers:      []domain.Layer{domain.LayerEntity},
			Severity:    domain.SeverityWarning,
			TargetLayer: domain.LayerService,
			Rationale:   "Entities hold state. Values derived from that state with business constants such as discount rates or tax brackets belong in a service.",
			match:       matchEntityRule,
		},
		{
			ID:        AnemicService,
			Title:     "Anemic service method",
			Layers:    []domain.Layer{domain.LayerService},
			Severity:  domain.SeverityInfo,
			Rationale: "The service method forwards to a single repository call and adds no logic of its own.",
			match:     matchAnemicService,
		},
	}
}

// Options customize a catalog at build time.
type Options struct {
	BusinessTerms []string
	Disabled      []string
	Severity      map[string]domain.Severity
	Docs          []domain.RuleDoc
}

// OptionsFromConfig maps the rule-related configuration sections.
func OptionsFromConfig(cfg domain.Config, docs []domain.RuleDoc) Options {
	return Options{
		BusinessTerms: cfg.BusinessTerms,
		Disabled:      cfg.Rules.Disabled,
		Severity:      cfg.Rules.Severity,
		Docs:          docs,
	}
}

// Catalog is the ordered rule table plus a per-layer index. It is built once
// and shared read-only by every run.
type Catalog struct {
	rules   []Rule
	byLayer map[domain.Layer][]int
	terms   []string
}

// NewCatalog builds the catalog. Knowledge-base documents override rationale,
// title and severity of the rule they name and extend the business vocabulary;
// configuration overrides win over documents.
func NewCatalog(opts Options) *Catalog {
	c := &Catalog{byLayer: map[domain.Layer][]int{}}

	terms := map[string]bool{}
	for _, t := range DefaultBusinessTerms {
		terms[t] = true
	}
	for _, t := range opts.BusinessTerms {
		terms[strings.ToLower(t)] = true
	}

	docs := map[string]domain.RuleDoc{}
	for _, d := range opts.Docs {
		docs[d.RuleID] = d
		for _, t := range d.BusinessTerms {
			terms[strings.ToLower(t)] = true
		}
	}
	disabled := map[string]bool{}
	for _, id := range opts.Disabled {
		disabled[id] = true
	}

	for _, r := range builtin() {
		if d, ok := docs[r.ID]; ok {
			if d.Disabled {
				continue
			}
			if d.Title != "" {
				r.Title = d.Title
			}
			if strings.TrimSpace(d.Rationale) != "" {
				r.Rationale = strings.TrimSpace(d.Rationale)
			}
			if d.Severity != "" {
				r.Severity = d.Severity
			}
			r.Source = d.Source
		}
		if disabled[r.ID] {
			continue
		}
		if sev, ok := opts.Severity[r.ID]; ok {
			r.Severity = sev
		}
		c.rules = append(c.rules, r)
	}
	sort.SliceStable(c.rules, func(i, j int) bool { return c.rules[i].ID < c.rules[j].ID })
	for i, r := range c.rules {
		for _, l := range r.Layers {
			c.byLayer[l] = append(c.byLayer[l], i)
		}
	}

	for t := range terms {
		c.terms = append(c.terms, t)
	}
	sort.Strings(c.terms)
	return c
}

// Rules returns the rules in catalog order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Rule looks up a rule by id.
func (c *Catalog) Rule(id string) (Rule, bool) {
	for _, r := range c.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// ForLayer returns the rules applicable to a layer, in catalog order.
func (c *Catalog) ForLayer(l domain.Layer) []Rule {
	idx := c.byLayer[l]
	out := make([]Rule, len(idx))
	for i, j := range idx {
		out[i] = c.rules[j]
	}
	return out
}

// BusinessTerms returns the terms of the vocabulary found among tokens.
// A token matches a term it starts with when at most three letters follow,
// so "discounted" matches "discount".
func (c *Catalog) BusinessTerms(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		for _, term := range c.terms {
			if strings.HasPrefix(tok, term) && len(tok)-len(term) <= 3 {
				out = append(out, term)
				break
			}
		}
	}
	return out
}

// Vocabulary returns the sorted business vocabulary.
func (c *Catalog) Vocabulary() []string {
	out := make([]string, len(c.terms))
	copy(out, c.terms)
	return out
}
