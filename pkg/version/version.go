// Package version carries the build identity stamped into the redstreamd
// and redstream binaries.
package version

import "runtime"

// Set at build time via -ldflags; the defaults identify a local build.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns the build identity as a map, the form the /status probe
// reports.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}
