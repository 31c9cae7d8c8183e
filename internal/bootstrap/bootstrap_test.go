package bootstrap_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdidvp/layerfix/internal/bootstrap"
	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/testutil"
)

func load(t *testing.T, app *bootstrap.App, name string) domain.Project {
	t.Helper()
	project, err := app.Loader.LoadDir(context.Background(), testutil.Fixture(name))
	require.NoError(t, err)
	return project
}

func TestNew_MissingKey(t *testing.T) {
	app, err := bootstrap.New(domain.DefaultConfig(), nil, bootstrap.Options{})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Fixer()
	require.Error(t, err)
	assert.True(t, bootstrap.MissingKey(err))
	assert.EqualError(t, err, "OPENAI_API_KEY missing")

	_, err = app.Run(context.Background(), load(t, app, "leaky"), domain.FixOptions{})
	assert.True(t, bootstrap.MissingKey(err))

	rep, err := app.Service.Detect(context.Background(), load(t, app, "leaky"))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Counts.Violations)
}

func TestRun_WritesOutputDir(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "fixed")
	gen := &testutil.Generator{}

	app, err := bootstrap.New(cfg, nil, bootstrap.Options{Generator: gen})
	require.NoError(t, err)
	defer app.Close()

	rep, err := app.Run(context.Background(), load(t, app, "leaky"), domain.FixOptions{})
	require.NoError(t, err)
	assert.True(t, rep.Success, rep.Error)
	assert.Equal(t, 3, gen.Calls())
	require.NotEmpty(t, rep.Fixed)

	for p, content := range rep.Fixed {
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, filepath.FromSlash(p)))
		require.NoError(t, err, p)
		assert.Equal(t, content, string(data))
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "fixed")
	app, err := bootstrap.New(cfg, nil, bootstrap.Options{Generator: &testutil.Generator{}})
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Run(context.Background(), load(t, app, "leaky"), domain.FixOptions{DryRun: true})
	require.NoError(t, err)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestNew_HistoryAndMetrics(t *testing.T) {
	base := t.TempDir()
	reg := prometheus.NewRegistry()
	app, err := bootstrap.New(domain.DefaultConfig(), nil, bootstrap.Options{
		BaseDir:   base,
		History:   true,
		Registry:  reg,
		Generator: &testutil.Generator{},
	})
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.History)
	require.NotNil(t, app.Metrics)
	assert.FileExists(t, filepath.Join(base, ".layerfix", "history.db"))

	_, err = app.Run(context.Background(), load(t, app, "clean"), domain.FixOptions{})
	require.NoError(t, err)

	runs, err := app.History.List("clean", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
}

func TestNew_KnowledgeBaseDir(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.KnowledgeBase = "missing-kb"
	_, err := bootstrap.New(cfg, nil, bootstrap.Options{BaseDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading knowledge base")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.md"),
		[]byte("---\nrule: BL005\ndisabled: true\n---\nAnemic services are fine here.\n"), 0644))
	cfg.KnowledgeBase = dir
	app, err := bootstrap.New(cfg, nil, bootstrap.Options{})
	require.NoError(t, err)
	_, ok := app.Service.Catalog().Rule("BL005")
	assert.False(t, ok)
}
