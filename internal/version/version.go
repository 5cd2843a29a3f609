// Package version хранит сведения о сборке, заданные через -ldflags.
package version

import "fmt"

const service = "autosales"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

func Version() string { return version }

func Service() string { return service }

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", service, version, commit, date)
}
