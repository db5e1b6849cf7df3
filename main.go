package main

import (
	"os"

	"github.com/replicate/splitget/cmd"
	"github.com/replicate/splitget/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()

	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
