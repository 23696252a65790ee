// Package rtlib holds the shell runtime library prepended to every script.
//
// The library is an opaque asset to the rest of the pipeline. The only
// structure the pipeline relies on is the version header on its first line:
//
//	# rash-runtime: v1.0.0
package rtlib

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// HeaderPrefix starts the version line of a runtime library.
const HeaderPrefix = "# rash-runtime:"

//go:embed runtime.sh
var source string

// Source returns the default runtime library text.
func Source() string {
	return source
}

// Version returns the version declared by the default runtime library.
func Version() string {
	v, err := ParseVersion(source)
	if err != nil {
		panic(fmt.Sprintf("embedded runtime library: %v", err))
	}
	return v
}

// ParseVersion extracts the semantic version from the first line of a
// runtime library. The version must be canonical semver with a leading "v".
func ParseVersion(text string) (string, error) {
	line, _, _ := strings.Cut(text, "\n")
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), HeaderPrefix)
	if !ok {
		return "", fmt.Errorf("missing %q header", HeaderPrefix)
	}
	v := strings.TrimSpace(rest)
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid runtime version %q", v)
	}
	return v, nil
}
