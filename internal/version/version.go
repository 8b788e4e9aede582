// Package version carries the build version, set at link time:
//
//	go build -ldflags "-X ringrelay/internal/version.Version=0.4.1"
package version

// Version is announced to peers and compared as a plain string. An empty
// version never announces itself and accepts any advertised upgrade.
var Version = ""

// Commit is the source revision, informational only.
var Commit = ""

// String describes the build for humans.
func String() string {
	v := Version
	if v == "" {
		v = "unversioned"
	}
	if Commit != "" {
		v += " (" + Commit + ")"
	}
	return v
}
