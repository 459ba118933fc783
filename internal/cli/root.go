// Package cli provides the command-line interface for dbtbridge.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtbridge/internal/cli/commands"
	"github.com/leapstack-labs/dbtbridge/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbtbridge",
		Short: "dbtbridge - dbt project importer",
		Long: `dbtbridge imports dbt-style SQL transformation projects: it resolves
macros, refs, sources and schema configuration, renders every model template,
and emits plain converted SQL for the target dialect.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := context.WithValue(cmd.Context(), commands.ConfigKey{}, cfg)
			ctx = context.WithValue(ctx, commands.LoggerKey{}, logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if f := config.ConfigFileUsed(); f != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", f)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dbtbridge.yaml)")
	rootCmd.PersistentFlags().StringP("project-dir", "p", "", "Path to the source dbt project")
	rootCmd.PersistentFlags().String("out", "", "Output directory for converted files")
	rootCmd.PersistentFlags().StringP("adapter", "a", "", "Adapter used for macro dispatch (postgres, snowflake, ...)")
	rootCmd.PersistentFlags().String("source-dialect", "", "Dialect the source SQL was written for")
	rootCmd.PersistentFlags().String("target-dialect", "", "Dialect to emit (empty: no conversion)")
	rootCmd.PersistentFlags().String("schema", "", "Base schema override")
	rootCmd.PersistentFlags().String("state-path", "", "Import history database path")
	rootCmd.PersistentFlags().StringToString("vars", nil, "Variable overrides (key=value)")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Parallel render limit (0: number of CPUs)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewModelsCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
