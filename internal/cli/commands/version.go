package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, buildDate, gitCommit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "dbtbridge %s\n", version)
			fmt.Fprintf(w, "  build date: %s\n", buildDate)
			fmt.Fprintf(w, "  commit:     %s\n", gitCommit)
			fmt.Fprintf(w, "  go:         %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
