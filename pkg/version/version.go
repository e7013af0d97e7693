// pkg/version/version.go

package version

import "fmt"

// Name is the product name used by the command line tools.
const Name = "avemq"

var (
	version      = "0.1-dev"
	revision     = "$Format:%h$"
	revisionDate = "$Format:%as$"
)

// Version returns the version in format - `VERSION (REVISIONDATE REVISION)`
// value is assigned in Makefile
func Version() string {
	return fmt.Sprintf("%v (%v %v)", version, revisionDate, revision)
}

// Banner returns the name and version, logged when a command starts.
func Banner() string {
	return Name + " " + Version()
}
