// Package build provides build information that is linked into the binary at build time.
package build

var (
	// ProjectName is the name of this project.
	ProjectName = "fgabatch"

	// Version is the build version of this project (e.g. v0.1.0).
	Version = "dev"

	// Commit is the git commit hash this project was built from.
	Commit = ""
)
