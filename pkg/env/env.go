package env

import (
	"fmt"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

const unset = "unset"

// Overridden at link time for release builds; otherwise derived from build info.
var Version = unset

func CurrentVersion() string {
	if Version != unset {
		return Version
	}
	return versioninfo.Short()
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s\n", CurrentVersion()) // nolint:errcheck
}
