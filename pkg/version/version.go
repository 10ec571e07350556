// Package version provides build version information for notedex.
package version

// Version is the current notedex version.
// Overridden at build time via -ldflags "-X github.com/notedex/notedex/pkg/version.Version=...".
var Version = "0.3.0-dev"
