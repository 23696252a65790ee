package emitter

import (
	"regexp"
	"strings"
)

var bareSafe = regexp.MustCompile(`^[A-Za-z0-9_./:@%+,=-]+$`)

// Quote renders s as a single-quoted shell word that any POSIX shell reads
// back as exactly s. Embedded single quotes close the quoting, emit a
// double-quoted quote, and reopen it.
//
//	it's  =>  'it'"'"'s'
//	""    =>  ''
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// IsBareSafe reports whether s may be written without quotes: it is
// non-empty and contains no character the shell treats specially.
func IsBareSafe(s string) bool {
	return bareSafe.MatchString(s)
}
