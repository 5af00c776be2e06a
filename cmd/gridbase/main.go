package main

import (
	"os"

	"github.com/gridbase/gridbase/cmd"
	"github.com/gridbase/gridbase/cmd/resolve"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(resolve.NewLookupCommand())
	rootCmd.AddCommand(resolve.NewRollupCommand())
	rootCmd.AddCommand(resolve.NewHierarchyCommand())
	rootCmd.AddCommand(cmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
