package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtbridge/internal/project"
	"github.com/leapstack-labs/dbtbridge/internal/resolve"
)

// NewModelsCommand creates the models command.
func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models [project-dir]",
		Short: "List models with their resolved relations",
		Long: `Models loads the project and prints each model with the schema, relation
and tags it would resolve to, without rendering anything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runModels,
	}
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg := GetConfig(cmd.Context())

	dir := cfg.ProjectDir
	if len(args) > 0 {
		dir = args[0]
	}
	p, err := project.Load(dir)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	base := cfg.Schema
	if base == "" && p.Profile != nil {
		base = p.Profile.EffectiveSchema()
	}

	w := cmd.OutOrStdout()
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Model", "Folder", "Schema", "Tags"})

	for _, m := range p.Models {
		in := resolve.Input{
			ModelName:     m.Name,
			FolderPath:    m.FolderPath,
			InlineConfig:  m.InlineConfig,
			ProjectTree:   p.ConfigTree,
			ProfileSchema: base,
		}
		if m.Metadata != nil {
			in.MetadataConfig = m.Metadata.Config
			in.MetadataSchema = m.Metadata.Schema
			in.MetadataRootTags = m.Metadata.Tags
		}
		t.AppendRow(table.Row{
			m.Name,
			strings.Join(m.FolderPath, "/"),
			resolve.Schema(in),
			strings.Join(resolve.Tags(in), ", "),
		})
	}
	t.Render()
	fmt.Fprintf(w, "%d models, %d sources, %d macro files\n", len(p.Models), len(p.Sources), len(p.Macros))
	return nil
}
