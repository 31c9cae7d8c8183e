package classify_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/classify"
)

func unit(name string, annotations, supertypes, tokens []string) domain.SourceUnit {
	return domain.SourceUnit{
		Name: name,
		Kind: domain.UnitClass,
		Markers: domain.Markers{
			Annotations: annotations,
			Supertypes:  supertypes,
			NameTokens:  tokens,
		},
	}
}

func TestClassify_StrongMarkers(t *testing.T) {
	tests := []struct {
		name string
		u    domain.SourceUnit
		want domain.Layer
	}{
		{"rest controller", unit("OrderController", []string{"RestController"}, nil, nil), domain.LayerController},
		{"request mapping", unit("Api", []string{"RequestMapping"}, nil, nil), domain.LayerController},
		{"repository annotation", unit("OrderStore", []string{"Repository"}, nil, nil), domain.LayerRepository},
		{"jpa supertype", unit("OrderRepository", nil, []string{"JpaRepository"}, nil), domain.LayerRepository},
		{"entity", unit("Order", []string{"Entity"}, nil, nil), domain.LayerEntity},
		{"document", unit("Order", []string{"Document"}, nil, nil), domain.LayerEntity},
		{"service", unit("Pricing", []string{"Service"}, nil, nil), domain.LayerService},
		{"component", unit("Pricing", []string{"Component"}, nil, nil), domain.LayerService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify.Classify(tt.u))
		})
	}
}

func TestClassify_NameSuffixes(t *testing.T) {
	assert.Equal(t, domain.LayerService, classify.Classify(unit("OrderServiceImpl", nil, nil, []string{"order", "service", "impl"})))
	assert.Equal(t, domain.LayerController, classify.Classify(unit("OrderResource", nil, nil, []string{"order", "resource"})))
	assert.Equal(t, domain.LayerRepository, classify.Classify(unit("OrderDao", nil, nil, []string{"order", "dao"})))
	// a bare "Service" name is not a suffix
	assert.Equal(t, domain.LayerUnclassified, classify.Classify(unit("Service", nil, nil, []string{"service"})))
}

func TestClassify_BusinessVerbsFallback(t *testing.T) {
	u := unit("Pricing", nil, nil, []string{"pricing"})
	u.Members = []domain.Member{
		{Name: "calculateTax", Kind: domain.MemberMethod, NameTokens: []string{"calculate", "tax"}},
		{Name: "applyDiscount", Kind: domain.MemberMethod, NameTokens: []string{"apply", "discount"}},
		{Name: "rate", Kind: domain.MemberField, NameTokens: []string{"rate"}},
	}
	assert.Equal(t, domain.LayerService, classify.Classify(u))

	u.Members = append(u.Members, domain.Member{Name: "toString", Kind: domain.MemberMethod, NameTokens: []string{"to", "string"}})
	assert.Equal(t, domain.LayerUnclassified, classify.Classify(u))
}

func TestClassify_Unclassified(t *testing.T) {
	d := classify.Explain(unit("Utils", nil, nil, []string{"utils"}))
	assert.Equal(t, domain.LayerUnclassified, d.Layer)
	assert.NoError(t, d.Err())
}

func TestExplain_AmbiguousResolvesByPrecedence(t *testing.T) {
	d := classify.Explain(unit("Weird", []string{"Entity", "RestController"}, nil, nil))
	assert.Equal(t, domain.LayerController, d.Layer)
	assert.Equal(t, "@RestController", d.Reason)
	assert.True(t, d.Ambiguous())
	assert.Equal(t, []domain.Layer{domain.LayerController, domain.LayerEntity}, d.Candidates)
	assert.True(t, errors.Is(d.Err(), domain.ErrClassificationAmbiguous))
}

func TestClassify_Deterministic(t *testing.T) {
	u := unit("OrderRepository", []string{"Repository"}, []string{"JpaRepository"}, []string{"order", "repository"})
	first := classify.Explain(u)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classify.Explain(u))
	}
}

func TestUnits_DoesNotMutateInput(t *testing.T) {
	in := []domain.SourceUnit{unit("Order", []string{"Entity"}, nil, nil)}
	out := classify.Units(in)
	assert.Equal(t, domain.LayerEntity, out[0].Layer)
	assert.Empty(t, in[0].Layer)
}
