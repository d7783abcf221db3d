package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapprofile/pkg/profiler"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display leapprofile version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leapprofile v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rule-based data profiler (profiler library %s)\n", profiler.Version)
		},
	}
}
