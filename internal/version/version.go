// Package version exposes the build identity of the littleapp binary.
package version

import "fmt"

// Version is stamped at build time with -ldflags "-X ...version.Version=v1.2.3".
var Version = "dev"

// BuildTime is stamped at build time alongside Version.
var BuildTime = "unknown"

// String returns the human readable version line printed by `littleapp version`.
func String() string {
	return fmt.Sprintf("littleapp version %s (built %s)", Version, BuildTime)
}

// UserAgent is sent on outbound calls to the LLM and search providers.
func UserAgent() string {
	return "littleapp/" + Version
}
