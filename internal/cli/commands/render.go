package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtbridge/internal/engine"
	"github.com/leapstack-labs/dbtbridge/internal/project"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render <model>",
		Short: "Render a single model and print the SQL",
		Long: `Render runs the full pipeline for one model (macro dispatch, ref/source
resolution, dialect conversion) and prints the resulting SQL to stdout.
Diagnostics go to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: runRender,
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := GetConfig(cmd.Context())
	log := GetLogger(cmd.Context())
	name := args[0]

	p, err := project.Load(cfg.ProjectDir)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	eng := engine.New(engine.Options{
		Adapter:       cfg.Adapter,
		SourceDialect: cfg.SourceDialect,
		TargetDialect: cfg.TargetDialect,
		Schema:        cfg.Schema,
		Vars:          cfg.EngineVars(),
		Select:        []string{name},
		Logger:        log,
	})
	run, err := eng.Run(cmd.Context(), p)
	if err != nil {
		return err
	}
	if len(run.Results) == 0 {
		return fmt.Errorf("model %q not found", name)
	}

	r := &run.Results[0]
	for _, d := range r.Diagnostics {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", d.Severity, d.Message)
	}
	if r.Status == core.ConversionFailed {
		return fmt.Errorf("rendering %s: %s", name, r.FailedReason())
	}
	fmt.Fprintln(cmd.OutOrStdout(), r.SQL)
	return nil
}
