// Package version exposes the version of the program that is set at build
// time.
package version

// version is the version of the program.  It is set externally using
// ldflags.
var version = "dev"

// Version returns the program version.
func Version() (v string) {
	return version
}
