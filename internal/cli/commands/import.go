package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtbridge/internal/engine"
	"github.com/leapstack-labs/dbtbridge/internal/project"
	"github.com/leapstack-labs/dbtbridge/internal/report"
	"github.com/leapstack-labs/dbtbridge/internal/state"
	"github.com/leapstack-labs/dbtbridge/internal/writer"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// ImportOptions holds options for the import command.
type ImportOptions struct {
	Select  []string
	DryRun  bool
	NoState bool
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	opts := &ImportOptions{}
	cmd := &cobra.Command{
		Use:   "import [project-dir]",
		Short: "Import a dbt project and emit converted SQL",
		Long: `Import loads the project, resolves every model's final relation, renders
all model templates with macro dispatch, converts the SQL to the target
dialect and writes the result to the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Select, "select", "s", nil, "Only import the named models")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Render and report without writing output files")
	cmd.Flags().BoolVar(&opts.NoState, "no-state", false, "Skip recording the run in the state database")
	return cmd
}

func runImport(cmd *cobra.Command, args []string, opts *ImportOptions) error {
	cfg := GetConfig(cmd.Context())
	log := GetLogger(cmd.Context())
	started := time.Now()

	dir := cfg.ProjectDir
	if len(args) > 0 {
		dir = args[0]
	}

	p, err := project.Load(dir)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}
	if len(p.Models) == 0 {
		return fmt.Errorf("no models found in %s", dir)
	}

	eng := engine.New(engine.Options{
		Adapter:       cfg.Adapter,
		SourceDialect: cfg.SourceDialect,
		TargetDialect: cfg.TargetDialect,
		Schema:        cfg.Schema,
		Vars:          cfg.EngineVars(),
		Select:        opts.Select,
		Concurrency:   cfg.Concurrency,
		Logger:        log,
	})
	run, err := eng.Run(cmd.Context(), p)
	if err != nil {
		return err
	}

	info := report.RunInfo{
		Project:       p.File.Name,
		Adapter:       cfg.Adapter,
		SourceDialect: cfg.SourceDialect,
		TargetDialect: cfg.TargetDialect,
		StartedAt:     started,
	}
	if info.Adapter == "" && p.Profile != nil {
		info.Adapter = p.Profile.Type
	}

	written, err := writer.Write(writer.Output{
		Dir:     cfg.OutDir,
		Project: p,
		Info:    info,
		DryRun:  opts.DryRun,
	}, run.Results, run.Diagnostics)
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if !opts.DryRun && !opts.NoState {
		if err := recordRun(cfg.StatePath, info, run.Results, log); err != nil {
			// State is bookkeeping, not output; a failure here must not undo
			// a completed import.
			log.Warn("failed to record run", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	report.Summary(out, run.Results)
	if GetConfig(cmd.Context()).Verbose {
		report.Diagnostics(out, run.Results)
	}
	if !opts.DryRun {
		fmt.Fprintf(out, "Wrote %d files to %s\n", len(written), cfg.OutDir)
	}

	if counts := run.Counts(); counts[core.ConversionFailed] > 0 {
		return fmt.Errorf("%d model(s) failed to convert", counts[core.ConversionFailed])
	}
	return nil
}

func recordRun(path string, info report.RunInfo, results []core.ConversionResult, log *slog.Logger) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	store, err := state.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	changed, err := store.Changed(info.Project, results)
	if err == nil {
		log.Info("change detection", "changed", len(changed), "total", len(results))
	}

	run, err := store.BeginRun(info.Project, info.Adapter, info.TargetDialect)
	if err != nil {
		return err
	}
	return store.FinishRun(run, results)
}
