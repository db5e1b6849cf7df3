package cmd

import (
	"github.com/spf13/cobra"

	"github.com/replicate/splitget/cmd/multifile"
	"github.com/replicate/splitget/cmd/root"
	"github.com/replicate/splitget/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(multifile.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
