package domain

import (
	"fmt"
	"time"
)

// Config holds project-level configuration loaded from .layerfix.yaml.
type Config struct {
	KnowledgeBase string           `yaml:"knowledge_base" json:"knowledge_base,omitempty"`
	OutputDir     string           `yaml:"output_dir"     json:"output_dir,omitempty"`
	Include       []string         `yaml:"include"        json:"include,omitempty"`
	Exclude       []string         `yaml:"exclude"        json:"exclude,omitempty"`
	BusinessTerms []string         `yaml:"business_terms" json:"business_terms,omitempty"`
	Rules         RulesConfig      `yaml:"rules"          json:"rules"`
	Generation    GenerationConfig `yaml:"generation"     json:"generation"`
	ParseWorkers  int              `yaml:"parse_workers"  json:"parse_workers,omitempty"`
	LogLevel      string           `yaml:"log_level"      json:"log_level,omitempty"`
	HistoryPath   string           `yaml:"history_path"   json:"history_path,omitempty"`
}

// RulesConfig toggles and re-grades catalog rules.
type RulesConfig struct {
	Disabled []string            `yaml:"disabled" json:"disabled,omitempty"`
	Severity map[string]Severity `yaml:"severity" json:"severity,omitempty"`
}

// GenerationConfig tunes the text-generation collaborator and its retry
// policy.
type GenerationConfig struct {
	Model             string        `yaml:"model"               json:"model,omitempty"`
	BaseURL           string        `yaml:"base_url"            json:"base_url,omitempty"`
	APIKeyEnv         string        `yaml:"api_key_env"         json:"api_key_env,omitempty"`
	APIKey            string        `yaml:"-"                   json:"-"`
	MaxAttempts       int           `yaml:"max_attempts"        json:"max_attempts,omitempty"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"     json:"initial_backoff,omitempty"`
	MaxBackoff        time.Duration `yaml:"max_backoff"         json:"max_backoff,omitempty"`
	Concurrency       int           `yaml:"concurrency"         json:"concurrency,omitempty"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second,omitempty"`
	CallTimeout       time.Duration `yaml:"call_timeout"        json:"call_timeout,omitempty"`
	TopK              int           `yaml:"top_k"               json:"top_k,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Include: []string{"**/*.java"},
		Exclude: []string{"**/target/**", "**/build/**", "**/.git/**", "**/node_modules/**"},
		Generation: GenerationConfig{
			Model:             "gpt-4.1-nano",
			BaseURL:           "https://api.openai.com/v1",
			APIKeyEnv:         "OPENAI_API_KEY",
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			Concurrency:       4,
			RequestsPerSecond: 2,
			CallTimeout:       60 * time.Second,
			TopK:              5,
		},
		ParseWorkers: 8,
		LogLevel:     "info",
		HistoryPath:  ".layerfix/history.db",
	}
}

// IsRuleDisabled reports whether the named rule is switched off.
func (c Config) IsRuleDisabled(id string) bool {
	for _, r := range c.Rules.Disabled {
		if r == id {
			return true
		}
	}
	return false
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the config for invalid values and returns a descriptive error.
func (c Config) Validate() error {
	for id, sev := range c.Rules.Severity {
		if SeverityRank(sev) > 2 {
			return fmt.Errorf("unknown severity %q for rule %s (valid: error, warning, info)", sev, id)
		}
	}

	g := c.Generation
	if g.MaxAttempts < 0 {
		return fmt.Errorf("generation.max_attempts must be >= 0, got %d", g.MaxAttempts)
	}
	if g.Concurrency < 0 {
		return fmt.Errorf("generation.concurrency must be >= 0, got %d", g.Concurrency)
	}
	if g.RequestsPerSecond < 0 {
		return fmt.Errorf("generation.requests_per_second must be >= 0, got %g", g.RequestsPerSecond)
	}
	if g.InitialBackoff < 0 || g.MaxBackoff < 0 || g.CallTimeout < 0 {
		return fmt.Errorf("generation durations must not be negative")
	}
	if g.MaxBackoff > 0 && g.InitialBackoff > g.MaxBackoff {
		return fmt.Errorf("generation.initial_backoff (%s) exceeds max_backoff (%s)", g.InitialBackoff, g.MaxBackoff)
	}
	if g.TopK < 0 {
		return fmt.Errorf("generation.top_k must be >= 0, got %d", g.TopK)
	}
	if c.ParseWorkers < 0 {
		return fmt.Errorf("parse_workers must be >= 0, got %d", c.ParseWorkers)
	}

	if c.LogLevel != "" {
		valid := false
		for _, l := range validLogLevels {
			if c.LogLevel == l {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
		}
	}
	return nil
}

// Merge overlays explicit (non-zero) values of override on c.
func (c Config) Merge(override Config) Config {
	result := c
	if override.KnowledgeBase != "" {
		result.KnowledgeBase = override.KnowledgeBase
	}
	if override.OutputDir != "" {
		result.OutputDir = override.OutputDir
	}
	if len(override.Include) > 0 {
		result.Include = override.Include
	}
	if len(override.Exclude) > 0 {
		result.Exclude = override.Exclude
	}
	if len(override.BusinessTerms) > 0 {
		result.BusinessTerms = override.BusinessTerms
	}
	if len(override.Rules.Disabled) > 0 {
		result.Rules.Disabled = override.Rules.Disabled
	}
	if len(override.Rules.Severity) > 0 {
		result.Rules.Severity = override.Rules.Severity
	}
	if override.ParseWorkers > 0 {
		result.ParseWorkers = override.ParseWorkers
	}
	if override.LogLevel != "" {
		result.LogLevel = override.LogLevel
	}
	if override.HistoryPath != "" {
		result.HistoryPath = override.HistoryPath
	}

	g, o := &result.Generation, override.Generation
	if o.Model != "" {
		g.Model = o.Model
	}
	if o.BaseURL != "" {
		g.BaseURL = o.BaseURL
	}
	if o.APIKeyEnv != "" {
		g.APIKeyEnv = o.APIKeyEnv
	}
	if o.APIKey != "" {
		g.APIKey = o.APIKey
	}
	if o.MaxAttempts > 0 {
		g.MaxAttempts = o.MaxAttempts
	}
	if o.InitialBackoff > 0 {
		g.InitialBackoff = o.InitialBackoff
	}
	if o.MaxBackoff > 0 {
		g.MaxBackoff = o.MaxBackoff
	}
	if o.Concurrency > 0 {
		g.Concurrency = o.Concurrency
	}
	if o.RequestsPerSecond > 0 {
		g.RequestsPerSecond = o.RequestsPerSecond
	}
	if o.CallTimeout > 0 {
		g.CallTimeout = o.CallTimeout
	}
	if o.TopK > 0 {
		g.TopK = o.TopK
	}
	return result
}
