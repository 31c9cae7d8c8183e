package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/parser"
	"github.com/abdidvp/layerfix/internal/application"
	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	leakyDir = "../../testdata/java-layered/leaky"
	cleanDir = "../../testdata/java-layered/clean"
	pkgDir   = "src/main/java/com/example/leakydemo/"
)

var fastOptions = application.GeneratorOptions{
	MaxAttempts:       3,
	InitialBackoff:    time.Millisecond,
	MaxBackoff:        2 * time.Millisecond,
	Concurrency:       2,
	RequestsPerSecond: 1000,
	CallTimeout:       5 * time.Second,
}

var relocated = map[string]string{
	"getDiscountedTotal": `public double getDiscountedTotal(Order order) {
    if (order.getTotal() > 100) {
        return order.getTotal() * 0.9;
    }
    return order.getTotal();
}`,
	"getEligibleOrders": `public List<Order> getEligibleOrders() {
    List<Order> eligibleOrders = orderRepository.findEligibleForDiscount();
    for (Order order : eligibleOrders) {
        if (order.getTotal() > 500) {
            order.setTotal(order.getTotal() * 0.95);
        }
    }
    return eligibleOrders;
}`,
	"findEligibleForDiscount": `public List<Order> findEligibleForDiscount() {
    List<Order> orders = orderRepository.findAllOrders();
    return orders.stream()
            .filter(order -> order.getTotal() > 100)
            .peek(order -> order.setTotal(order.getDiscountedTotal()))
            .toList();
}`,
}

func respond(method, replacement string) string {
	data, _ := json.Marshal(map[string]string{
		"relocated_method":   method,
		"source_replacement": replacement,
	})
	return string(data)
}

var methodPattern = regexp.MustCompile(`Relocate method (\w+) of`)

// fakeGenerator answers with canned responses keyed by the method named in
// the instructions. Scripted responses are consumed first; afterwards the
// canned relocation is returned.
type fakeGenerator struct {
	mu       sync.Mutex
	scripted map[string][]string
	errs     map[string]error
	calls    map[string]int
	contexts []string
	hook     func(method string)
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{scripted: map[string][]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeGenerator) Generate(_ context.Context, contextText, instructions string) (string, error) {
	sub := methodPattern.FindStringSubmatch(instructions)
	if sub == nil {
		return "", fmt.Errorf("no method in instructions")
	}
	method := sub[1]

	f.mu.Lock()
	f.calls[method]++
	f.contexts = append(f.contexts, contextText)
	hook := f.hook
	var out string
	var err error
	switch {
	case f.errs[method] != nil:
		err = f.errs[method]
	case len(f.scripted[method]) > 0:
		out = f.scripted[method][0]
		f.scripted[method] = f.scripted[method][1:]
	default:
		out = respond(relocated[method], "")
	}
	f.mu.Unlock()

	if hook != nil {
		hook(method)
	}
	return out, err
}

func (f *fakeGenerator) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeGenerator) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type recordingHistory struct {
	mu   sync.Mutex
	runs []domain.RunSummary
}

func (h *recordingHistory) Record(s domain.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, s)
	return nil
}

func (h *recordingHistory) List(string, int) ([]domain.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.RunSummary(nil), h.runs...), nil
}

func loadProject(t *testing.T, dir string, skip ...string) domain.Project {
	t.Helper()
	files := map[string][]byte{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, s := range skip {
			if filepath.Base(rel) == s {
				return nil
			}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[rel] = data
		return nil
	})
	require.NoError(t, err)
	return domain.Project{Name: filepath.Base(dir), Files: files}
}

func newGenerator(gen domain.TextGenerator, opts application.GeneratorOptions) *application.FixGenerator {
	return application.NewFixGenerator(gen, nil, parser.New(), opts, zap.NewNop(), nil)
}

func newService(gen domain.TextGenerator, opts ...application.Option) *application.FixService {
	return application.NewFixService(
		parserForTest(),
		catalogForTest(),
		newGenerator(gen, fastOptions),
		zap.NewNop(),
		opts...,
	)
}

func resultsByRule(rep *domain.ProjectReport) map[string]domain.FixResult {
	out := map[string]domain.FixResult{}
	for _, r := range rep.Results() {
		out[r.RuleID] = r
	}
	return out
}

func parserForTest() domain.UnitParser { return parser.New() }

func catalogForTest() *rules.Catalog { return rules.NewCatalog(rules.Options{}) }
