package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/output"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/tui"
	"github.com/abdidvp/layerfix/internal/bootstrap"
	"github.com/abdidvp/layerfix/internal/domain"
)

func newFixCmd(g *globalFlags) *cobra.Command {
	var (
		dryRun     bool
		jsonOutput bool
		showPlans  bool
		rules      []string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "fix [path|project.zip]",
		Short: "Relocate leaked business logic into the service layer",
		Long: "Detect layering violations, generate the relocated code, patch and validate every touched file. " +
			"The complete fixed project is written to --output (or output_dir); the source tree is never modified.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := argOrDot(args)
			dir, err := projectDir(target)
			if err != nil {
				return err
			}
			app, err := setup(g, dir, bootstrap.Options{History: true})
			if err != nil {
				return err
			}
			defer app.Close()

			svc, err := app.Fixer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			project, err := loadProject(ctx, app, target)
			if err != nil {
				return err
			}

			opts := domain.FixOptions{DryRun: dryRun}
			for _, r := range rules {
				opts.Rules = append(opts.Rules, strings.ToUpper(strings.TrimSpace(r)))
			}

			rep, err := svc.Fix(ctx, project, opts)
			if err != nil && rep == nil {
				return fmt.Errorf("fix failed: %w", err)
			}

			dest := outputPath
			if dest == "" {
				dest = app.Config.OutputDir
			}
			if dest != "" && !dryRun && len(rep.Fixed) > 0 {
				if werr := writeFixed(ctx, dest, project.Files, rep); werr != nil {
					return werr
				}
				app.Logger.Info("fixed project written", zap.String("output", dest))
			}

			if jsonOutput {
				if jerr := renderJSON(cmd, rep); jerr != nil {
					return jerr
				}
			} else {
				if showPlans {
					fmt.Fprint(cmd.OutOrStdout(), tui.RenderPlans(rep.Plans))
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderReport(rep))
			}

			if err != nil {
				return fmt.Errorf("fix failed: %w", err)
			}
			if !rep.Success {
				return fmt.Errorf("%d fix(es) failed", rep.Counts.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and generate without applying patches")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&showPlans, "plans", false, "Show the fix plans before the report")
	cmd.Flags().StringSliceVar(&rules, "rules", nil, "Only fix the given rule ids (e.g. BL001,BL003)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the fixed project to this directory, or to a .zip with the report")

	return cmd
}

func loadProject(ctx context.Context, app *bootstrap.App, target string) (domain.Project, error) {
	if isZip(target) {
		data, err := os.ReadFile(target)
		if err != nil {
			return domain.Project{}, fmt.Errorf("reading archive: %w", err)
		}
		return app.Loader.LoadZip(ctx, target, data)
	}
	return app.Loader.LoadDir(ctx, target)
}

func writeFixed(ctx context.Context, dest string, original map[string][]byte, rep *domain.ProjectReport) error {
	files := output.Merge(original, rep.Fixed)
	if strings.HasSuffix(strings.ToLower(dest), ".zip") {
		data, err := output.ZipReport(ctx, files, rep)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		return nil
	}
	return output.NewDirWriter(dest).Write(ctx, files)
}
