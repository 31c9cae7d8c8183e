package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/abdidvp/layerfix/internal/domain"
)

// FileName is the configuration file looked up in the project root.
const FileName = ".layerfix.yaml"

// YAMLLoader implements domain.ConfigLoader by reading .layerfix.yaml and
// applying environment overrides.
type YAMLLoader struct {
	getenv func(string) string
}

// New creates a YAMLLoader reading the process environment.
func New() *YAMLLoader { return &YAMLLoader{getenv: os.Getenv} }

// WithEnv replaces the environment lookup, for tests.
func (l *YAMLLoader) WithEnv(getenv func(string) string) *YAMLLoader {
	l.getenv = getenv
	return l
}

// Load reads .layerfix.yaml from projectPath.
// Returns DefaultConfig plus environment overrides if the file does not exist.
func (l *YAMLLoader) Load(projectPath string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	data, err := os.ReadFile(filepath.Join(projectPath, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return domain.Config{}, err
	default:
		var file domain.Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return domain.Config{}, fmt.Errorf("parsing %s: %w", FileName, err)
		}
		// Validate before merging so typos in the raw file are reported.
		if err := file.Validate(); err != nil {
			return domain.Config{}, fmt.Errorf("invalid %s: %w", FileName, err)
		}
		cfg = cfg.Merge(file)
	}

	cfg, err = l.applyEnv(cfg)
	if err != nil {
		return domain.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, fmt.Errorf("invalid environment override: %w", err)
	}
	return cfg, nil
}

// applyEnv layers the service environment variables over the file values.
func (l *YAMLLoader) applyEnv(cfg domain.Config) (domain.Config, error) {
	get := l.getenv
	if v := get("KB_DIR"); v != "" {
		cfg.KnowledgeBase = v
	}
	if v := get("FIXED_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := get("MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := get("OPENAI_API_BASE"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := get("TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TOP_K: %w", err)
		}
		cfg.Generation.TopK = k
	}
	if v := get("LAYERFIX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	keyEnv := cfg.Generation.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	cfg.Generation.APIKey = get(keyEnv)
	return cfg, nil
}
