// Package version holds the build version string, overridable at link
// time with -ldflags "-X ...version.Version=...".
package version

var Version = "0.1.0-dev"
