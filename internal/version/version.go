// Package version holds the build identity of the mapsync binary.
package version

import (
	"strconv"

	"mapsync/internal/protocol"
)

// Overridable at build time:
//
//	go build -ldflags "-X mapsync/internal/version.Version=1.0.0 -X mapsync/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with an abbreviated commit when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the version, commit, build date and wire protocol version.
func Full() string {
	return "mapsync version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Protocol: " + strconv.Itoa(int(protocol.ProtocolVersion))
}
