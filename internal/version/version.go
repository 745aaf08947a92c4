// Package version holds build metadata, overridden at build time via
// -ldflags "-X github.com/analytiqhub/docrouter/internal/version.Version=...".
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
