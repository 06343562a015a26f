package main

import (
	"os"

	"github.com/openfga/fgabatch/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(cmd.NewCheckCommand())
	rootCmd.AddCommand(cmd.NewWriteCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
