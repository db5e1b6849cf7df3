package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replicate/splitget/pkg/version"
)

const VersionCMDName = "version"

var VersionCMD = &cobra.Command{
	Use:   VersionCMDName,
	Short: "print version and build information",
	Long:  "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "splitget Version %s\n", version.GetVersion())
	},
}
