package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/gridbase/gridbase/internal/build"
)

// NewVersionCommand returns the command to get gridbase version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the Gridbase version",
		Long:  "Return the Gridbase version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(_ *cobra.Command, _ []string) error {
	log.Printf("Gridbase Version %s commit id %s ", build.Version, build.Commit)
	return nil
}
