package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/internal/protocol/ca"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "dittoca %s\n", Version)
		_, _ = fmt.Fprintf(out, "  Commit:      %s\n", Commit)
		_, _ = fmt.Fprintf(out, "  Built:       %s\n", Date)
		_, _ = fmt.Fprintf(out, "  Go version:  %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "  CA protocol: 4.%d\n", ca.MinorVersion)
	},
}
