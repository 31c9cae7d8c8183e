package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/config"
	"github.com/abdidvp/layerfix/internal/bootstrap"
	"github.com/abdidvp/layerfix/internal/logging"
)

// setup loads the configuration found in dir and assembles the pipeline.
func setup(g *globalFlags, dir string, opts bootstrap.Options) (*bootstrap.App, error) {
	cfg, err := config.New().Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}
	opts.BaseDir = dir
	return bootstrap.New(cfg, logger, opts)
}

// newRegistry returns a registry carrying the Go and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// projectDir resolves the directory holding .layerfix.yaml for a target that
// may be a directory or a zip archive.
func projectDir(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if isZip(abs) {
		return filepath.Dir(abs), nil
	}
	return abs, nil
}

func isZip(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func argOrDot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func renderJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
