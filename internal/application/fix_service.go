package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/classify"
	"github.com/abdidvp/layerfix/internal/domain/patch"
	"github.com/abdidvp/layerfix/internal/domain/planner"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

const defaultParseWorkers = 8

// FixService orchestrates the fix pipeline:
// ingest → parse → classify → detect → plan → generate → apply → validate → report.
type FixService struct {
	parser    domain.UnitParser
	catalog   *rules.Catalog
	detector  *rules.Detector
	generator *FixGenerator
	validator *Validator
	logger    *zap.Logger
	metrics   domain.Metrics
	history   domain.RunHistory
	git       domain.GitInfo
	workers   int
	now       func() time.Time
}

// Option customizes a FixService.
type Option func(*FixService)

func WithMetrics(m domain.Metrics) Option { return func(s *FixService) { s.metrics = m } }

func WithHistory(h domain.RunHistory) Option { return func(s *FixService) { s.history = h } }

func WithGitInfo(g domain.GitInfo) Option { return func(s *FixService) { s.git = g } }

// WithParseWorkers bounds the number of files parsed concurrently.
func WithParseWorkers(n int) Option {
	return func(s *FixService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option { return func(s *FixService) { s.now = now } }

func NewFixService(parser domain.UnitParser, catalog *rules.Catalog, generator *FixGenerator, logger *zap.Logger, opts ...Option) *FixService {
	if logger == nil {
		logger = zap.NewNop()
	}
	detector := rules.NewDetector(catalog)
	s := &FixService{
		parser:    parser,
		catalog:   catalog,
		detector:  detector,
		generator: generator,
		validator: NewValidator(parser, detector),
		logger:    logger,
		metrics:   domain.NopMetrics{},
		workers:   defaultParseWorkers,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalog exposes the rule catalog the service detects with.
func (s *FixService) Catalog() *rules.Catalog { return s.catalog }

// run carries the state of one pipeline execution.
type run struct {
	report *domain.ProjectReport
	log    *zap.Logger
	files  map[string][]byte
	units  []domain.SourceUnit
	// violations holds every detected violation; fixable the ones selected
	// by the run options.
	violations []domain.Violation
	fixable    []domain.Violation
}

func (s *FixService) begin(project domain.Project) *run {
	id := uuid.NewString()
	r := &run{
		report: &domain.ProjectReport{
			RunID:     id,
			Project:   project.Name,
			StartedAt: s.now(),
		},
		log:   s.logger.With(zap.String("run_id", id), zap.String("project", project.Name)),
		files: project.Files,
	}
	s.stage(r, domain.StageIngested)
	return r
}

func (s *FixService) stage(r *run, st domain.Stage) {
	r.report.Stage = st
	r.report.Stages = append(r.report.Stages, domain.StageTransition{Stage: st, At: s.now()})
	r.log.Info("stage", zap.String("stage", string(st)))
}

// Detect runs the analysis stages only: parse, classify and detect.
func (s *FixService) Detect(ctx context.Context, project domain.Project) (*domain.ProjectReport, error) {
	r := s.begin(project)
	if err := s.analyze(ctx, r, domain.FixOptions{}); err != nil {
		return s.finish(ctx, r, err)
	}
	r.report.Tally()
	r.report.FinishedAt = s.now()
	return r.report, nil
}

// Fix runs the full pipeline. A report is returned even on failure; the
// error is non-nil only when nothing in the project could be analyzed or the
// pipeline itself broke.
func (s *FixService) Fix(ctx context.Context, project domain.Project, opts domain.FixOptions) (*domain.ProjectReport, error) {
	r := s.begin(project)
	if s.git != nil && project.Root != "" && s.git.IsGitRepo(project.Root) {
		if hash, err := s.git.CommitHash(project.Root); err == nil {
			r.report.CommitHash = hash
		}
	}

	if err := s.analyze(ctx, r, opts); err != nil {
		return s.finish(ctx, r, err)
	}

	plans := planner.Plan(r.units, r.fixable)
	r.report.Plans = plans
	s.stage(r, domain.StagePlanned)

	s.stage(r, domain.StageGenerating)
	gens, settled := s.generate(ctx, r, plans)

	// Patching and validation are local and short; they finish even when the
	// run is cancelled so that completed generations are not lost.
	local := context.WithoutCancel(ctx)
	s.stage(r, domain.StageApplying)
	out, reverted, err := s.applyValidated(local, r, plans, gens, settled)
	if err != nil {
		return s.finish(ctx, r, fmt.Errorf("applying patches: %w", err))
	}
	s.stage(r, domain.StageValidated)

	s.collect(r, out, reverted, opts)
	return s.finish(ctx, r, nil)
}

// analyze parses, classifies and detects. It fails only when not a single
// unit could be parsed.
func (s *FixService) analyze(ctx context.Context, r *run, opts domain.FixOptions) error {
	paths := javaPaths(r.files)
	if len(paths) == 0 {
		return domain.ErrEmptyProject
	}

	parsed := make([][]domain.SourceUnit, len(paths))
	parseErrs := make([]error, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range paths {
		g.Go(func() error {
			units, err := s.parser.Parse(gctx, p, r.files[p])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				parseErrs[i] = err
				return nil
			}
			parsed[i] = classify.Units(units)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("parsing project: %w", err)
	}

	r.report.Files = make([]domain.FileReport, len(paths))
	for i, p := range paths {
		fr := domain.FileReport{Path: p}
		if err := parseErrs[i]; err != nil {
			fr.ParseError = err.Error()
			fr.Results = append(fr.Results, parseFailure(p, err))
			r.log.Warn("parse failed", zap.String("file", p), zap.Error(err))
		}
		for _, u := range parsed[i] {
			d := classify.Explain(u)
			if err := d.Err(); err != nil {
				r.log.Warn("classification", zap.String("unit", u.Name), zap.Error(err),
					zap.String("layer", string(d.Layer)))
			}
			fr.Units = append(fr.Units, domain.UnitSummary{Name: u.Name, Kind: u.Kind, Layer: u.Layer, Reason: d.Reason})
			r.units = append(r.units, u)
		}
		r.report.Files[i] = fr
	}
	s.stage(r, domain.StageParsed)
	if len(r.units) == 0 {
		return domain.ErrNoParsableUnits
	}
	s.stage(r, domain.StageClassified)

	perUnit := make([][]domain.Violation, len(r.units))
	var dg errgroup.Group
	dg.SetLimit(s.workers)
	for i, u := range r.units {
		dg.Go(func() error {
			perUnit[i] = s.detector.Detect(u)
			return nil
		})
	}
	_ = dg.Wait()
	for _, vs := range perUnit {
		r.violations = append(r.violations, vs...)
	}
	sort.SliceStable(r.violations, func(i, j int) bool {
		a, b := r.violations[i], r.violations[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		return a.RuleID < b.RuleID
	})
	for _, v := range r.violations {
		s.metrics.ViolationDetected(v.RuleID)
		if fr, ok := r.report.File(v.Path); ok {
			fr.Violations = append(fr.Violations, v)
		}
		if opts.WantsRule(v.RuleID) {
			r.fixable = append(r.fixable, v)
		}
	}
	s.stage(r, domain.StageDetected)
	return nil
}

// generate obtains text for every actionable plan that needs its own. Failed
// and cancelled plans are returned as settled results.
func (s *FixService) generate(ctx context.Context, r *run, plans []domain.FixPlan) (map[string]domain.Generation, map[string]domain.FixResult) {
	gens := map[string]domain.Generation{}
	settled := map[string]domain.FixResult{}
	if s.generator == nil {
		return gens, settled
	}

	units := map[string]domain.SourceUnit{}
	for _, u := range r.units {
		units[u.ID] = u
	}
	redundant := patch.Redundant(plans)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.generator.Concurrency())
	for _, p := range plans {
		if !p.Actionable() || redundant[p.ID] != "" {
			continue
		}
		u := units[p.Violation.UnitID]
		m, _ := u.Member(p.Violation.MemberID)
		req := GenerationRequest{Plan: p, Unit: u, Member: m, Source: r.files[u.Path]}
		if src, ok := r.files[p.Target.Path]; ok && !p.Target.IsNew {
			req.Target = src
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				settled[p.ID] = settledResult(p, domain.OutcomeSkipped, "cancelled", nil)
				mu.Unlock()
				return nil
			}
			gen, err := s.generator.Generate(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				gens[p.ID] = gen
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				settled[p.ID] = settledResult(p, domain.OutcomeSkipped, "cancelled", nil)
			default:
				r.log.Warn("generation failed", zap.String("plan", p.ID), zap.Error(err))
				settled[p.ID] = settledResult(p, domain.OutcomeFailed, "", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return gens, settled
}

// applyValidated patches the project and validates every touched file. A
// file that fails validation fails every plan that touched it, and the
// project is patched again without them.
func (s *FixService) applyValidated(
	ctx context.Context,
	r *run,
	plans []domain.FixPlan,
	gens map[string]domain.Generation,
	settled map[string]domain.FixResult,
) (patch.Outcome, map[string]bool, error) {
	byID := map[string]domain.FixPlan{}
	for _, p := range plans {
		byID[p.ID] = p
	}
	reverted := map[string]bool{}

	for round := 0; round <= len(plans); round++ {
		out, err := patch.Apply(ctx, s.parser, patch.Input{
			Files:       r.files,
			Units:       r.units,
			Plans:       plans,
			Generations: gens,
			Settled:     settled,
		})
		if err != nil {
			return patch.Outcome{}, nil, err
		}

		paths := make([]string, 0, len(out.Touched))
		for p := range out.Touched {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		clean := true
		for _, path := range paths {
			var touching []domain.FixPlan
			for _, id := range out.Touched[path] {
				touching = append(touching, byID[id])
			}
			before, existed := r.files[path]
			if !existed {
				before = nil
			}
			after, changed := out.Files[path]
			if !changed {
				continue
			}
			res := s.validator.Validate(ctx, path, before, after, touching)
			if res.Passed {
				continue
			}
			clean = false
			reverted[path] = true
			r.log.Warn("validation failed, reverting", zap.String("file", path), zap.Error(res.Regression))
			for _, p := range touching {
				settled[p.ID] = settledResult(p, domain.OutcomeFailed, "", res.Regression)
			}
		}
		if clean {
			return out, reverted, nil
		}
	}
	return patch.Outcome{}, nil, fmt.Errorf("validation did not settle after %d rounds", len(plans)+1)
}

// parseFailure records a file that could not be parsed as a failed result so
// that it counts against the run.
func parseFailure(path string, err error) domain.FixResult {
	r := domain.FixResult{
		PlanID:  "parse:" + path,
		Path:    path,
		Outcome: domain.OutcomeFailed,
		Error:   err.Error(),
	}
	var pe *domain.ParseError
	if errors.As(err, &pe) && pe.Line > 0 {
		r.Span = domain.Span{StartLine: pe.Line, EndLine: pe.Line}
	}
	return r
}

func settledResult(p domain.FixPlan, outcome domain.Outcome, note string, err error) domain.FixResult {
	r := domain.FixResult{
		PlanID:  p.ID,
		RuleID:  p.Violation.RuleID,
		Path:    p.Violation.Path,
		Member:  p.Violation.Member,
		Span:    p.Violation.Span,
		Outcome: outcome,
		Notes:   append([]string(nil), p.Notes...),
	}
	if p.Target != nil {
		r.Target = p.Target.Name
	}
	if note != "" {
		r.Notes = append(r.Notes, note)
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// collect files the results into the report and records the fixed text.
func (s *FixService) collect(r *run, out patch.Outcome, reverted map[string]bool, opts domain.FixOptions) {
	for _, res := range out.Results {
		if res.Outcome == domain.OutcomeApplied && res.Diff != "" {
			res.Notes = append(res.Notes, domain.UnverifiedNote)
		}
		if opts.DryRun && res.Outcome == domain.OutcomeApplied {
			res.Outcome = domain.OutcomeSkipped
			res.Notes = append(res.Notes, "dry run")
		}
		s.metrics.FixResult(res.Outcome)
		if fr, ok := r.report.File(res.Path); ok {
			fr.Results = append(fr.Results, res)
		}
	}
	for path := range reverted {
		if fr, ok := r.report.File(path); ok {
			fr.Reverted = true
		}
	}
	if opts.DryRun {
		return
	}

	r.report.Fixed = map[string]string{}
	for path, text := range out.Files {
		r.report.Fixed[path] = string(text)
	}
	for _, path := range out.Created {
		r.report.Files = append(r.report.Files, domain.FileReport{Path: path, Created: true})
	}
	sort.SliceStable(r.report.Files, func(i, j int) bool { return r.report.Files[i].Path < r.report.Files[j].Path })
}

// finish moves the run to its terminal stage, records it and returns the
// report with err.
func (s *FixService) finish(ctx context.Context, r *run, err error) (*domain.ProjectReport, error) {
	rep := r.report
	if err != nil {
		rep.Error = err.Error()
	}
	rep.Cancelled = ctx.Err() != nil
	rep.Tally()
	s.stage(r, domain.StageReported)
	rep.FinishedAt = s.now()

	elapsed := rep.FinishedAt.Sub(rep.StartedAt).Seconds()
	s.metrics.RunFinished(rep.Success, elapsed)
	r.log.Info("run finished",
		zap.Bool("success", rep.Success),
		zap.Bool("cancelled", rep.Cancelled),
		zap.Int("files", rep.Counts.Files),
		zap.Int("violations", rep.Counts.Violations),
		zap.Int("applied", rep.Counts.Applied),
		zap.Int("skipped", rep.Counts.Skipped),
		zap.Int("failed", rep.Counts.Failed),
		zap.Float64("seconds", elapsed),
	)
	if s.history != nil {
		if herr := s.history.Record(rep.Summary()); herr != nil {
			r.log.Warn("recording run history", zap.Error(herr))
		}
	}
	return rep, err
}

func javaPaths(files map[string][]byte) []string {
	var out []string
	for p := range files {
		if strings.HasSuffix(p, ".java") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
