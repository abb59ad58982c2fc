package version

import "fmt"

// VERSION is the major.minor.patch version the binary was built from, injected by the linker.
var VERSION string

// GITCOMMIT is the short git hash the binary was built from, injected by the linker.
var GITCOMMIT string

// VersionToString formats the injected build information for display, or returns
// an empty string for binaries built without it.
func VersionToString() string {
	if VERSION == "" && GITCOMMIT == "" {
		return ""
	}
	return fmt.Sprintf("%s - %s", VERSION, GITCOMMIT)
}
