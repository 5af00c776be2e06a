// Package build provides build-time metadata about the gridbase project.
package build

const ProjectName = "gridbase"

// Version and Commit are overridden at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)
