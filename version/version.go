package version

import "fmt"

// values are injected at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"

	FullVersion = fmt.Sprintf("%s (%s) built %s", Version, GitCommit, BuildDate)
)
