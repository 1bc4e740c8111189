// Package version exposes the build metadata stamped into the knowligo
// binary. Release builds overwrite the variables with -ldflags:
//
//	go build -ldflags "\
//	  -X github.com/knowligo/knowligo-go/internal/version.Version=v1.2.3 \
//	  -X github.com/knowligo/knowligo-go/internal/version.Commit=abc1234 \
//	  -X github.com/knowligo/knowligo-go/internal/version.BuildDate=2026-01-01"
//
// A plain `go build` leaves the defaults in place, so the binary always
// reports something readable.
package version

import "fmt"

var (
	// Version is the semantic version of the release, "dev" when unset.
	Version = "dev"

	// Commit is the short git SHA the binary was built from.
	Commit = "unknown"

	// BuildDate is the UTC build date in RFC 3339 date form.
	BuildDate = "unknown"
)

// String renders the build metadata on one line for CLI output and logs.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
