package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ckan-migrate/internal/di"
	"ckan-migrate/internal/migration/config"
	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/usecase"
	sharederrors "ckan-migrate/internal/shared/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "ckan_migration_config.json"

type runOptions struct {
	configPath    string
	skipOrgs      bool
	skipDatasets  bool
	skipResources bool
	orgs          []string
	datasets      []string
	yes           bool
}

func main() {
	// A .env file is a convenience for local runs, nothing more.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "ckan-migrate [config-file]",
		Short: "Migrate organizations, datasets and resources between CKAN instances",
		Long: `ckan-migrate copies a CKAN 2.8 catalog onto a CKAN 2.11 instance:
organizations first, then datasets, then resources with their files.

Runs are resumable: completed entities are recorded in a mapping file and
skipped on the next run, and fetched metadata and files are cached locally.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = defaultConfigPath
			if len(args) == 1 {
				opts.configPath = args[0]
			}
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipOrgs, "skip-orgs", false, "skip the organization phase")
	cmd.Flags().BoolVar(&opts.skipDatasets, "skip-datasets", false, "skip the dataset phase")
	cmd.Flags().BoolVar(&opts.skipResources, "skip-resources", false, "skip the resource phase")
	cmd.Flags().StringSliceVar(&opts.orgs, "orgs", nil, "migrate only these organizations (names or IDs)")
	cmd.Flags().StringSliceVar(&opts.datasets, "datasets", nil, "migrate only these datasets (names or IDs)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "run without the confirmation prompt")

	return cmd
}

func run(ctx context.Context, opts *runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "No config file at %s. Create one like:\n\n%s\n", opts.configPath, config.ExampleFile())
		}
		return err
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	printPlan(cfg, opts)
	if !opts.yes && !confirm(os.Stdin) {
		fmt.Println("Aborted.")
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := container.Migrator.Run(ctx, usecase.MigrateRequest{
		SkipOrganizations: opts.skipOrgs,
		SkipDatasets:      opts.skipDatasets,
		SkipResources:     opts.skipResources,
		Organizations:     opts.orgs,
		Datasets:          opts.datasets,
	})
	// An untrusted mapping aborts with no partial report; an interrupt
	// still gets one, since its partial state is valid for a resume.
	if report != nil && !sharederrors.IsRunFatal(err) {
		printSummary(report)
	}
	if err != nil {
		return fmt.Errorf("migration aborted: %w", err)
	}
	return nil
}

func printPlan(cfg *config.Config, opts *runOptions) {
	fmt.Println("Migration plan")
	fmt.Printf("  source:  %s\n", cfg.Source.URL)
	fmt.Printf("  target:  %s\n", cfg.Target.URL)
	fmt.Printf("  phases:  %s\n", strings.Join(plannedPhases(opts), ", "))
	if len(opts.orgs) > 0 {
		fmt.Printf("  orgs:    %s\n", strings.Join(opts.orgs, ", "))
	}
	if len(opts.datasets) > 0 {
		fmt.Printf("  datasets: %s\n", strings.Join(opts.datasets, ", "))
	}
	fmt.Println()
	fmt.Println("Ensure 'ckan -c CONFIG_FILE db upgrade' has been run on the target before continuing.")
}

func plannedPhases(opts *runOptions) []string {
	var phases []string
	if !opts.skipOrgs {
		phases = append(phases, "organizations")
	}
	if !opts.skipDatasets {
		phases = append(phases, "datasets")
	}
	if !opts.skipResources {
		phases = append(phases, "resources")
	}
	if len(phases) == 0 {
		phases = append(phases, "none")
	}
	return phases
}

func confirm(in *os.File) bool {
	fmt.Print("Proceed with migration? [y/N]: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printSummary(report *model.MigrationReport) {
	fmt.Println()
	fmt.Printf("Run %s finished in %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Println()
	fmt.Printf("%-15s %10s %10s %10s %10s %10s\n", "", "attempted", "created", "matched", "skipped", "failed")
	printKindStats("organizations", report.Organizations)
	printKindStats("datasets", report.Datasets)
	printKindStats("resources", report.Resources)

	if report.HasFailures() {
		fmt.Println()
		fmt.Printf("%d entities failed:\n", len(report.Failures))
		for _, f := range report.Failures {
			name := f.Name
			if name == "" {
				name = f.SourceID
			}
			fmt.Printf("  %-12s %-30s %s\n", f.Kind, name, f.Reason)
		}
		fmt.Println()
		fmt.Println("Re-run with the same mapping file to retry only the failures.")
	}
}

func printKindStats(label string, stats model.KindStats) {
	fmt.Printf("%-15s %10d %10d %10d %10d %10d\n",
		label, stats.Attempted, stats.Created, stats.MatchedExisting, stats.Skipped, stats.Failed)
}
