package knowledge_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/knowledge"
	"github.com/abdidvp/layerfix/internal/domain"
)

func TestDefault_RuleDocs(t *testing.T) {
	kb := knowledge.Default()
	docs := kb.RuleDocs()

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.RuleID)
		assert.NotEmpty(t, d.Rationale, d.RuleID)
	}
	assert.Equal(t, []string{"BL001", "BL002", "BL003", "BL004", "BL005"}, ids)
	assert.Contains(t, docs[0].BusinessTerms, "eligible")
	assert.Equal(t, "bl001-repository-logic.md", docs[0].Source)
	assert.Equal(t, domain.SeverityWarning, docs[3].Severity)
	assert.Positive(t, kb.Len())
}

func TestRetrieve_RanksMatchingChunks(t *testing.T) {
	kb := knowledge.Default()

	chunks := kb.Retrieve("findEligibleForDiscount repository stream filter", 3)
	require.NotEmpty(t, chunks)
	assert.LessOrEqual(t, len(chunks), 3)
	assert.Equal(t, "BL001", chunks[0].RuleID)
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Score, chunks[i].Score)
	}
}

func TestRetrieve_NoMatch(t *testing.T) {
	kb := knowledge.Default()
	assert.Empty(t, kb.Retrieve("zzzz qqqq", 5))
	assert.Empty(t, kb.Retrieve("discount", 0))
	assert.Empty(t, kb.Retrieve("", 5))
}

func TestLoadFS_FrontMatter(t *testing.T) {
	fsys := fstest.MapFS{
		"custom.md": {Data: []byte("---\nrule: BL003\ntitle: Controller thresholds\nseverity: warning\n" +
			"disabled: true\nbusiness_terms: [overdraft]\n---\n# Heading\n\nThresholds belong in services.\n\nSecond paragraph.\n")},
		"notes.md":    {Data: []byte("Plain notes about overdraft handling.\n")},
		"ignored.txt": {Data: []byte("not markdown")},
	}
	kb, err := knowledge.LoadFS(fsys)
	require.NoError(t, err)

	docs := kb.RuleDocs()
	require.Len(t, docs, 1)
	assert.Equal(t, domain.RuleDoc{
		RuleID:        "BL003",
		Title:         "Controller thresholds",
		Severity:      domain.SeverityWarning,
		Disabled:      true,
		BusinessTerms: []string{"overdraft"},
		Rationale:     "Thresholds belong in services.",
		Source:        "custom.md",
	}, docs[0])
	assert.Equal(t, 4, kb.Len())

	hits := kb.Retrieve("overdraft", 5)
	require.Len(t, hits, 1)
	assert.Equal(t, "notes.md", hits[0].Source)
	assert.Empty(t, hits[0].RuleID)
}

func TestLoadFS_BadFrontMatter(t *testing.T) {
	_, err := knowledge.LoadFS(fstest.MapFS{"bad.md": {Data: []byte("---\nrule: [\n---\nbody\n")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.md")

	_, err = knowledge.LoadFS(fstest.MapFS{"open.md": {Data: []byte("---\nrule: BL001\nbody\n")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated")
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := knowledge.Load(t.TempDir() + "/missing")
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"find", "eligible", "discount", "order", "get", "total", "100"},
		knowledge.Tokenize("findEligibleForDiscount(order.getTotal() > 100)"))
}
