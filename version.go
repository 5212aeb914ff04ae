package perfscope

// Version information for the perfscope library. The build-time values are
// overridden with -ldflags "-X github.com/itsneelabh/perfscope.GitCommit=...".
var (
	// Version is the current library version
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
