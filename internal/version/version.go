// Package version holds build metadata, overridable via ldflags.
package version

// Version is the release version, set at build time with
// -ldflags "-X github.com/skondo/overture/internal/version.Version=v1.2.3".
var Version = "dev"
