// Package classify assigns source units to architectural layers from their
// structural markers.
package classify

import (
	"fmt"
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

// signal is one layer's strong markers. The order of strongSignals is the
// classification precedence.
type signal struct {
	layer       domain.Layer
	annotations []string
	supertypes  []string
}

var strongSignals = []signal{
	{
		layer: domain.LayerController,
		annotations: []string{
			"Controller", "RestController", "RequestMapping", "GetMapping", "PostMapping",
			"PutMapping", "DeleteMapping", "PatchMapping", "Path",
		},
	},
	{
		layer:       domain.LayerRepository,
		annotations: []string{"Repository"},
		supertypes: []string{
			"JpaRepository", "CrudRepository", "PagingAndSortingRepository", "MongoRepository",
			"ReactiveCrudRepository", "ListCrudRepository", "Repository", "JpaSpecificationExecutor",
		},
	},
	{
		layer:       domain.LayerEntity,
		annotations: []string{"Entity", "Table", "Document", "MappedSuperclass", "Embeddable"},
	},
	{
		layer:       domain.LayerService,
		annotations: []string{"Service", "Component", "Transactional"},
	},
}

// weak name suffixes, consulted only when no annotation or supertype decides.
var nameSuffixes = []struct {
	layer    domain.Layer
	suffixes [][]string
}{
	{domain.LayerService, [][]string{{"service"}, {"service", "impl"}}},
	{domain.LayerController, [][]string{{"controller"}, {"resource"}}},
	{domain.LayerRepository, [][]string{{"repository"}, {"repo"}, {"dao"}}},
}

// businessVerbs are method-name verbs that read as domain operations.
var businessVerbs = map[string]bool{
	"apply": true, "approve": true, "calculate": true, "cancel": true, "charge": true,
	"compute": true, "confirm": true, "discount": true, "evaluate": true, "place": true,
	"process": true, "refund": true, "register": true, "reject": true, "reserve": true,
	"settle": true, "ship": true, "submit": true, "validate": true,
}

// Decision explains how a unit was classified.
type Decision struct {
	Layer      domain.Layer   `json:"layer"`
	Reason     string         `json:"reason"`
	Candidates []domain.Layer `json:"candidates,omitempty"`
}

// Ambiguous reports whether strong markers pointed at more than one layer.
func (d Decision) Ambiguous() bool { return len(d.Candidates) > 1 }

// Err returns domain.ErrClassificationAmbiguous for ambiguous decisions.
func (d Decision) Err() error {
	if !d.Ambiguous() {
		return nil
	}
	return fmt.Errorf("%w: markers for %v, chose %s", domain.ErrClassificationAmbiguous, d.Candidates, d.Layer)
}

// Classify returns the unit's layer. It is a pure function of the unit's markers.
func Classify(u domain.SourceUnit) domain.Layer {
	return Explain(u).Layer
}

// Explain classifies the unit and reports the markers that decided it.
func Explain(u domain.SourceUnit) Decision {
	var d Decision
	for _, s := range strongSignals {
		reason := matchSignal(u.Markers, s)
		if reason == "" {
			continue
		}
		d.Candidates = append(d.Candidates, s.layer)
		if d.Layer == "" {
			d.Layer = s.layer
			d.Reason = reason
		}
	}
	if d.Layer != "" {
		return d
	}

	tokens := u.Markers.NameTokens
	for _, ns := range nameSuffixes {
		for _, suffix := range ns.suffixes {
			if hasSuffix(tokens, suffix) {
				return Decision{Layer: ns.layer, Reason: "name suffix " + strings.Join(suffix, "")}
			}
		}
	}

	if u.Kind == domain.UnitClass && len(u.Markers.Annotations) == 0 && len(u.Markers.Supertypes) == 0 && allBusinessMethods(u) {
		return Decision{Layer: domain.LayerService, Reason: "only business-named methods"}
	}
	return Decision{Layer: domain.LayerUnclassified, Reason: "no layer markers"}
}

func matchSignal(m domain.Markers, s signal) string {
	for _, a := range s.annotations {
		if m.HasAnnotation(a) {
			return "@" + a
		}
	}
	for _, t := range s.supertypes {
		if m.HasSupertype(t) {
			return "extends " + t
		}
	}
	return ""
}

func hasSuffix(tokens, suffix []string) bool {
	if len(tokens) <= len(suffix) {
		return false
	}
	tail := tokens[len(tokens)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}

func allBusinessMethods(u domain.SourceUnit) bool {
	n := 0
	for _, m := range u.Members {
		if m.Kind != domain.MemberMethod {
			continue
		}
		n++
		if len(m.NameTokens) == 0 || !businessVerbs[m.NameTokens[0]] {
			return false
		}
	}
	return n > 0
}

// Units classifies every unit, returning new values.
func Units(units []domain.SourceUnit) []domain.SourceUnit {
	out := make([]domain.SourceUnit, len(units))
	for i, u := range units {
		out[i] = u.WithLayer(Classify(u))
	}
	return out
}
