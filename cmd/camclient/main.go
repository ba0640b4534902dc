package main

import (
	"os"

	"camclient/native/cmd/camclient/commands"
)

func main() {
	rootCmd := commands.RootCmd

	// Do not print usage when an error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
