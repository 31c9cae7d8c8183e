// Package knowledge loads the rule knowledge base: a directory of markdown
// documents, optionally bound to a rule through YAML front matter, split into
// paragraph chunks and ranked with BM25.
package knowledge

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/fatih/camelcase"
	"gopkg.in/yaml.v3"

	"github.com/abdidvp/layerfix/internal/domain"
)

//go:embed kb/*.md
var embedded embed.FS

const (
	k1 = 1.2
	b  = 0.75
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type frontMatter struct {
	Rule          string          `yaml:"rule"`
	Title         string          `yaml:"title"`
	Severity      domain.Severity `yaml:"severity"`
	Disabled      bool            `yaml:"disabled"`
	BusinessTerms []string        `yaml:"business_terms"`
}

type chunk struct {
	source string
	ruleID string
	text   string
	tf     map[string]int
	length int
}

// Base implements domain.KnowledgeBase. It is immutable after loading and
// safe for concurrent use.
type Base struct {
	docs   []domain.RuleDoc
	chunks []chunk
	df     map[string]int
	avgLen float64
}

// Default returns the knowledge base shipped with the binary.
func Default() *Base {
	sub, err := fs.Sub(embedded, "kb")
	if err != nil {
		panic(err)
	}
	kb, err := LoadFS(sub)
	if err != nil {
		panic(fmt.Sprintf("embedded knowledge base: %v", err))
	}
	return kb
}

// Load reads every *.md file of dir.
func Load(dir string) (*Base, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening knowledge base: %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads every *.md file at the root of fsys, in name order.
func LoadFS(fsys fs.FS) (*Base, error) {
	names, err := fs.Glob(fsys, "*.md")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	kb := &Base{df: map[string]int{}}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := kb.add(name, data); err != nil {
			return nil, err
		}
	}

	total := 0
	for _, c := range kb.chunks {
		total += c.length
		for term := range c.tf {
			kb.df[term]++
		}
	}
	if len(kb.chunks) > 0 {
		kb.avgLen = float64(total) / float64(len(kb.chunks))
	}
	return kb, nil
}

func (kb *Base) add(name string, data []byte) error {
	data = bytes.ReplaceAll(data, []byte("\u200b"), nil)
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	var fm frontMatter
	body := string(data)
	if rest, ok := strings.CutPrefix(body, "---\n"); ok {
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return fmt.Errorf("%s: unterminated front matter", name)
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
			return fmt.Errorf("%s: parsing front matter: %w", name, err)
		}
		body = strings.TrimPrefix(rest[end+len("\n---"):], "\n")
	}

	var rationale string
	for _, para := range paragraphBreak.Split(strings.TrimSpace(body), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if rationale == "" && !strings.HasPrefix(para, "#") {
			rationale = para
		}
		tokens := Tokenize(para)
		if len(tokens) == 0 {
			continue
		}
		tf := map[string]int{}
		for _, t := range tokens {
			tf[t]++
		}
		kb.chunks = append(kb.chunks, chunk{source: name, ruleID: fm.Rule, text: para, tf: tf, length: len(tokens)})
	}

	if fm.Rule != "" {
		kb.docs = append(kb.docs, domain.RuleDoc{
			RuleID:        fm.Rule,
			Title:         fm.Title,
			Severity:      fm.Severity,
			Disabled:      fm.Disabled,
			BusinessTerms: fm.BusinessTerms,
			Rationale:     rationale,
			Source:        path.Base(name),
		})
	}
	return nil
}

// RuleDocs returns the documents bound to a rule, in file order.
func (kb *Base) RuleDocs() []domain.RuleDoc {
	return append([]domain.RuleDoc(nil), kb.docs...)
}

// Len is the number of retrievable chunks.
func (kb *Base) Len() int { return len(kb.chunks) }

// Retrieve returns the k chunks scoring highest for query. Ties keep
// document order.
func (kb *Base) Retrieve(query string, k int) []domain.KnowledgeChunk {
	terms := Tokenize(query)
	if k <= 0 || len(terms) == 0 || len(kb.chunks) == 0 {
		return nil
	}
	seen := map[string]bool{}
	unique := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	n := float64(len(kb.chunks))
	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, c := range kb.chunks {
		score := 0.0
		for _, t := range unique {
			tf := float64(c.tf[t])
			if tf == 0 {
				continue
			}
			df := float64(kb.df[t])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			score += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*float64(c.length)/kb.avgLen))
		}
		if score > 0 {
			hits = append(hits, scored{i, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]domain.KnowledgeChunk, len(hits))
	for i, h := range hits {
		c := kb.chunks[h.idx]
		out[i] = domain.KnowledgeChunk{Source: c.source, RuleID: c.ruleID, Text: c.text, Score: h.score}
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "be": true, "by": true,
	"for": true, "from": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "such": true, "the": true, "this": true, "to": true, "with": true,
	"public": true, "private": true, "return": true, "new": true,
}

// Tokenize lowercases text into words, splitting identifiers on camel case
// boundaries so that findEligibleForDiscount matches "eligible" and
// "discount".
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, w := range words {
		for _, part := range camelcase.Split(w) {
			part = strings.ToLower(part)
			if len(part) < 2 || stopwords[part] {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}
