// Package bootstrap assembles the fix pipeline from configuration. Every
// inbound adapter builds its App here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/gitinfo"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/history"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/knowledge"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/llm"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/metrics"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/output"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/parser"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/scanner"
	"github.com/abdidvp/layerfix/internal/application"
	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

// Options control what the App wires beyond the pipeline itself.
type Options struct {
	// BaseDir resolves the relative knowledge_base and history_path settings.
	BaseDir string
	// History opens the run history database.
	History bool
	// Registry receives the pipeline metrics. Nil disables them.
	Registry *prometheus.Registry
	// Generator replaces the OpenAI client.
	Generator domain.TextGenerator
}

// App is a ready pipeline plus the adapters the transports need.
type App struct {
	Config  domain.Config
	Logger  *zap.Logger
	Loader  *scanner.Loader
	Service *application.FixService
	Metrics *metrics.Prometheus
	History *history.BoltHistory

	generatorErr error
}

// New builds the pipeline. A missing API key is not an error here: Detect
// still works, and Fixer reports it.
func New(cfg domain.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kb, err := loadKnowledge(cfg.KnowledgeBase, opts.BaseDir)
	if err != nil {
		return nil, err
	}
	logger.Debug("knowledge base loaded", zap.Int("chunks", kb.Len()), zap.Int("rule_docs", len(kb.RuleDocs())))

	app := &App{Config: cfg, Logger: logger, Loader: scanner.FromConfig(cfg)}

	var m domain.Metrics = domain.NopMetrics{}
	if opts.Registry != nil {
		app.Metrics = metrics.New(opts.Registry)
		m = app.Metrics
	}

	par := parser.New()
	catalog := rules.NewCatalog(rules.OptionsFromConfig(cfg, kb.RuleDocs()))

	text := opts.Generator
	if text == nil {
		client, err := llm.NewOpenAIClient(cfg.Generation, logger.Named("llm"))
		if err != nil {
			app.generatorErr = err
		} else {
			text = client
		}
	}
	var gen *application.FixGenerator
	if text != nil {
		gen = application.NewFixGenerator(text, kb, par, application.GeneratorOptionsFromConfig(cfg.Generation), logger.Named("generator"), m)
	}

	svcOpts := []application.Option{
		application.WithMetrics(m),
		application.WithGitInfo(gitinfo.New()),
		application.WithParseWorkers(cfg.ParseWorkers),
	}
	if opts.History && cfg.HistoryPath != "" {
		h, err := history.Open(resolve(opts.BaseDir, cfg.HistoryPath))
		if err != nil {
			// A locked or unwritable history must not block a run.
			logger.Warn("run history unavailable", zap.Error(err))
		} else {
			app.History = h
			svcOpts = append(svcOpts, application.WithHistory(h))
		}
	}

	app.Service = application.NewFixService(par, catalog, gen, logger, svcOpts...)
	return app, nil
}

// Fixer returns the service for runs that generate text, or the reason no
// generator is configured.
func (a *App) Fixer() (*application.FixService, error) {
	if a.generatorErr != nil {
		return nil, a.generatorErr
	}
	return a.Service, nil
}

// Run fixes project and, when an output directory is configured, replaces
// its content with the fixed files of the run.
func (a *App) Run(ctx context.Context, project domain.Project, opts domain.FixOptions) (*domain.ProjectReport, error) {
	svc, err := a.Fixer()
	if err != nil {
		return nil, err
	}
	rep, err := svc.Fix(ctx, project, opts)
	if err != nil {
		return rep, err
	}
	if a.Config.OutputDir != "" && !opts.DryRun && len(rep.Fixed) > 0 {
		if werr := output.NewDirWriter(a.Config.OutputDir).Write(ctx, output.Merge(nil, rep.Fixed)); werr != nil {
			a.Logger.Warn("writing fixed files", zap.String("dir", a.Config.OutputDir), zap.Error(werr))
		}
	}
	return rep, nil
}

// MissingKey reports whether err comes from an absent API key.
func MissingKey(err error) bool { return errors.Is(err, llm.ErrMissingAPIKey) }

// Close releases the history database.
func (a *App) Close() error {
	if a.History == nil {
		return nil
	}
	return a.History.Close()
}

func loadKnowledge(dir, base string) (*knowledge.Base, error) {
	if dir == "" {
		return knowledge.Default(), nil
	}
	kb, err := knowledge.Load(resolve(base, dir))
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}
	return kb, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}
