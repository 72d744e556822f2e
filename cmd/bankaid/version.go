package main

// Version, BuildTime, and GitCommit are set via -ldflags at build time
// (publisher-leader-app/main.go's same convention); "dev"/"unknown" are placeholders
// for a local build.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
