package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/config"
	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

func newInitCmd() *cobra.Command {
	var (
		force bool
		terms []string
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Generate a .layerfix.yaml configuration file",
		Long:  "Create a .layerfix.yaml with the default settings, ready to be tuned for your project.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(argOrDot(args))
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			dest := filepath.Join(absPath, config.FileName)
			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", config.FileName)
				}
			}

			if err := os.WriteFile(dest, []byte(generateConfig(terms)), 0644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", config.FileName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing .layerfix.yaml")
	cmd.Flags().StringSliceVar(&terms, "business-terms", nil, "Extra words that mark a name as a business concept")

	return cmd
}

func generateConfig(terms []string) string {
	cfg := domain.DefaultConfig()
	g := cfg.Generation

	var b strings.Builder
	b.WriteString("# layerfix configuration\n\n")
	b.WriteString("include:\n")
	for _, p := range cfg.Include {
		fmt.Fprintf(&b, "  - %q\n", p)
	}
	b.WriteString("exclude:\n")
	for _, p := range cfg.Exclude {
		fmt.Fprintf(&b, "  - %q\n", p)
	}

	if len(terms) > 0 {
		b.WriteString("\n# Added to the built-in vocabulary.\nbusiness_terms:\n")
		for _, t := range terms {
			fmt.Fprintf(&b, "  - %s\n", strings.ToLower(strings.TrimSpace(t)))
		}
	}

	fmt.Fprintf(&b, "\nrules:\n  disabled: []\n  # severity:\n  #   %s: warning\n", rules.AnemicService)

	fmt.Fprintf(&b, `
generation:
  model: %s
  base_url: %s
  api_key_env: %s
  max_attempts: %d
  initial_backoff: %s
  max_backoff: %s
  concurrency: %d
  requests_per_second: %g
  call_timeout: %s
  top_k: %d

parse_workers: %d
log_level: %s
history_path: %s

# knowledge_base: docs/architecture
# output_dir: fixed
`, g.Model, g.BaseURL, g.APIKeyEnv, g.MaxAttempts, g.InitialBackoff, g.MaxBackoff, g.Concurrency,
		g.RequestsPerSecond, g.CallTimeout, g.TopK, cfg.ParseWorkers, cfg.LogLevel, cfg.HistoryPath)

	return b.String()
}
