package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/abdidvp/layerfix/internal/domain"
)

// GeneratorOptions tune retries and the process-wide generation limits.
type GeneratorOptions struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Concurrency       int
	RequestsPerSecond float64
	CallTimeout       time.Duration
	TopK              int
}

// GeneratorOptionsFromConfig maps the generation config section, falling back
// to the defaults for unset values.
func GeneratorOptionsFromConfig(g domain.GenerationConfig) GeneratorOptions {
	d := domain.DefaultConfig().Generation
	pick := func(v, def int) int {
		if v > 0 {
			return v
		}
		return def
	}
	pickDur := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	rps := g.RequestsPerSecond
	if rps <= 0 {
		rps = d.RequestsPerSecond
	}
	return GeneratorOptions{
		MaxAttempts:       pick(g.MaxAttempts, d.MaxAttempts),
		InitialBackoff:    pickDur(g.InitialBackoff, d.InitialBackoff),
		MaxBackoff:        pickDur(g.MaxBackoff, d.MaxBackoff),
		Concurrency:       pick(g.Concurrency, d.Concurrency),
		RequestsPerSecond: rps,
		CallTimeout:       pickDur(g.CallTimeout, d.CallTimeout),
		TopK:              pick(g.TopK, d.TopK),
	}
}

// GenerationRequest carries everything the generator needs for one plan.
type GenerationRequest struct {
	Plan   domain.FixPlan
	Unit   domain.SourceUnit
	Member domain.Member
	// Source is the text of the file declaring Unit.
	Source []byte
	// Target is the text of the target file, nil when the target is new.
	Target []byte
}

// FixGenerator obtains replacement text for fix plans from the external
// text generator. The concurrency cap and the rate limit are shared by every
// run that uses the same FixGenerator.
type FixGenerator struct {
	text    domain.TextGenerator
	kb      domain.KnowledgeBase
	parser  domain.UnitParser
	opts    GeneratorOptions
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics domain.Metrics
}

func NewFixGenerator(
	text domain.TextGenerator,
	kb domain.KnowledgeBase,
	parser domain.UnitParser,
	opts GeneratorOptions,
	logger *zap.Logger,
	metrics domain.Metrics,
) *FixGenerator {
	opts = GeneratorOptionsFromConfig(domain.GenerationConfig{
		MaxAttempts:       opts.MaxAttempts,
		InitialBackoff:    opts.InitialBackoff,
		MaxBackoff:        opts.MaxBackoff,
		Concurrency:       opts.Concurrency,
		RequestsPerSecond: opts.RequestsPerSecond,
		CallTimeout:       opts.CallTimeout,
		TopK:              opts.TopK,
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	burst := max(1, int(opts.RequestsPerSecond))
	return &FixGenerator{
		text:    text,
		kb:      kb,
		parser:  parser,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		logger:  logger,
		metrics: metrics,
	}
}

// Concurrency is the number of generation calls allowed in flight.
func (g *FixGenerator) Concurrency() int { return g.opts.Concurrency }

// Generate returns the replacement text for one plan. Invalid requests fail
// without calling the generator. Transient failures, including responses that
// do not parse, are retried with exponential backoff. A cancelled ctx stops
// new attempts; an attempt already in flight runs to completion bounded by the
// call timeout.
func (g *FixGenerator) Generate(ctx context.Context, req GenerationRequest) (domain.Generation, error) {
	p := req.Plan
	fail := func(attempts int, err error) error {
		return &domain.GenerationFailure{
			PlanID:   p.ID,
			RuleID:   p.Violation.RuleID,
			File:     p.Violation.Path,
			Span:     p.Violation.Span,
			Attempts: attempts,
			Err:      err,
		}
	}
	if err := validateRequest(req); err != nil {
		return domain.Generation{}, fail(0, err)
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return domain.Generation{}, fail(0, err)
	}
	defer g.sem.Release(1)

	contextText := g.buildContext(req)
	instructions := buildInstructions(req)
	log := g.logger.With(zap.String("plan", p.ID), zap.String("rule", p.Violation.RuleID))

	attempts := 0
	op := func() (domain.Generation, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return domain.Generation{}, backoff.Permanent(err)
		}
		attempts++
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.CallTimeout)
		defer cancel()

		start := time.Now()
		raw, err := g.text.Generate(callCtx, contextText, instructions)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			g.metrics.GenerationAttempt("error", elapsed)
			return domain.Generation{}, fmt.Errorf("calling generator: %w", err)
		}
		gen, err := g.parseResponse(callCtx, p, raw)
		if err != nil {
			g.metrics.GenerationAttempt("invalid", elapsed)
			return domain.Generation{}, err
		}
		g.metrics.GenerationAttempt("ok", elapsed)
		return gen, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.opts.InitialBackoff
	policy.MaxInterval = g.opts.MaxBackoff
	policy.Multiplier = 2

	gen, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(g.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("generation attempt failed, retrying", zap.Error(err), zap.Duration("wait", wait))
		}),
	)
	if err != nil {
		return domain.Generation{}, fail(attempts, err)
	}
	gen.PlanID = p.ID
	gen.Attempts = attempts
	return gen, nil
}

func validateRequest(req GenerationRequest) error {
	p := req.Plan
	switch {
	case p.Violation.Advisory || !p.Actionable():
		return fmt.Errorf("%w: plan %s proposes no relocation", domain.ErrInvalidRequest, p.ID)
	case p.Target == nil || p.Target.Name == "":
		return fmt.Errorf("%w: plan %s has no target unit", domain.ErrInvalidRequest, p.ID)
	case !req.Member.HasBody:
		return fmt.Errorf("%w: member %s has no body", domain.ErrInvalidRequest, req.Member.Name)
	}
	body := strings.TrimSpace(req.Member.BodySpan.Text(req.Source))
	body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}"))
	if body == "" {
		return fmt.Errorf("%w: member %s has an empty body", domain.ErrInvalidRequest, req.Member.Name)
	}
	return nil
}

// buildContext assembles the rule rationale, retrieved knowledge and the
// surrounding code.
func (g *FixGenerator) buildContext(req GenerationRequest) string {
	p := req.Plan
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rule %s: %s\n", p.Violation.RuleID, p.Violation.Title)
	if p.Violation.Rationale != "" {
		sb.WriteString(p.Violation.Rationale)
		sb.WriteString("\n")
	}
	if len(p.Violation.Evidence) > 0 {
		fmt.Fprintf(&sb, "Evidence: %s\n", strings.Join(p.Violation.Evidence, "; "))
	}

	if g.kb != nil && g.opts.TopK > 0 {
		query := req.Member.Name + " " + p.Violation.Title + " " + req.Member.Span.Text(req.Source)
		chunks := g.kb.Retrieve(query, g.opts.TopK)
		if len(chunks) > 0 {
			sb.WriteString("\nReference material:\n")
			for _, c := range chunks {
				fmt.Fprintf(&sb, "[%s]\n%s\n\n", c.Source, strings.TrimSpace(c.Text))
			}
		}
	}

	fmt.Fprintf(&sb, "\nSource unit %s (%s, %s layer):\n%s\n", req.Unit.Name, req.Unit.Path, req.Unit.Layer, req.Source)
	if req.Target != nil {
		fmt.Fprintf(&sb, "\nTarget unit %s (%s):\n%s\n", p.Target.Name, p.Target.Path, req.Target)
	} else {
		fmt.Fprintf(&sb, "\nTarget unit %s does not exist yet; it will be created as a @Service class in package %s.\n",
			p.Target.Name, p.Target.Package)
	}
	return sb.String()
}

func buildInstructions(req GenerationRequest) string {
	p := req.Plan
	var sb strings.Builder
	fmt.Fprintf(&sb, "Relocate method %s of %s (%s layer) into %s (%s layer).\n",
		req.Member.Name, req.Unit.Name, req.Unit.Layer, p.Target.Name, p.TargetLayer)
	fmt.Fprintf(&sb, "The relocated method must be declared exactly as: %s\n", p.NewSignature)
	if len(p.Dependencies) > 0 {
		sb.WriteString("It may use these fields of the target:")
		for _, d := range p.Dependencies {
			fmt.Fprintf(&sb, " %s (%s)", d.Var, d.Type)
		}
		sb.WriteString(".\n")
	}

	switch {
	case p.Mode == domain.ModeDelegate:
		fmt.Fprintf(&sb, "The original method stays in %s and must delegate to %s.%s(...). "+
			"Put its full replacement, annotations included, in source_replacement.\n",
			req.Unit.Name, p.ServiceVar, p.NewMethod)
	case req.Unit.Layer == domain.LayerEntity:
		entity := domain.LowerFirst(req.Unit.Name)
		fmt.Fprintf(&sb, "The method moves out of the entity: read and write its state through %s's "+
			"getters and setters instead of fields. Leave source_replacement empty.\n", entity)
	default:
		fmt.Fprintf(&sb, "The method is removed from %s. Calls to other %s methods go through the %s field. "+
			"Leave source_replacement empty.\n", req.Unit.Name, req.Unit.Name, domain.LowerFirst(req.Unit.Name))
	}
	sb.WriteString("Preserve the observable behavior exactly.\n")
	sb.WriteString(`Respond with a single JSON object and nothing else: {"relocated_method": "...", "source_replacement": "..."}`)
	sb.WriteString("\n")
	return sb.String()
}

type generationResponse struct {
	RelocatedMethod   string `json:"relocated_method"`
	SourceReplacement string `json:"source_replacement"`
}

var errBadResponse = errors.New("unusable generator response")

// parseResponse decodes the response contract. Markdown code fences and text
// around the JSON object are tolerated. The relocated method must parse and
// declare the planned method.
func (g *FixGenerator) parseResponse(ctx context.Context, p domain.FixPlan, raw string) (domain.Generation, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return domain.Generation{}, fmt.Errorf("%w: no JSON object", errBadResponse)
	}
	var resp generationResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return domain.Generation{}, fmt.Errorf("%w: %v", errBadResponse, err)
	}
	method := stripFences(resp.RelocatedMethod)
	if method == "" {
		return domain.Generation{}, fmt.Errorf("%w: empty relocated_method", errBadResponse)
	}
	if !g.declares(ctx, method, p.NewMethod) {
		return domain.Generation{}, fmt.Errorf("%w: relocated_method does not declare %s", errBadResponse, p.NewMethod)
	}

	gen := domain.Generation{RelocatedMethod: method}
	if p.Mode == domain.ModeDelegate {
		replacement := stripFences(resp.SourceReplacement)
		if replacement != "" && g.declares(ctx, replacement, p.SourceName) {
			gen.SourceReplacement = replacement
		}
	}
	return gen, nil
}

// declares parses a method fragment inside a throwaway class.
func (g *FixGenerator) declares(ctx context.Context, fragment, name string) bool {
	if g.parser == nil {
		return strings.Contains(fragment, name+"(")
	}
	probe := "class LayerfixProbe {\n" + fragment + "\n}\n"
	units, err := g.parser.Parse(ctx, "LayerfixProbe.java", []byte(probe))
	if err != nil || len(units) == 0 {
		return false
	}
	for _, m := range units[0].Members {
		if m.Kind == domain.MemberMethod && m.Name == name && m.HasBody {
			return true
		}
	}
	return false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
