package emitter

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Verify parses script as d and reports the first syntax error. Dash has
// no variant of its own and is checked as POSIX.
func Verify(script string, d Dialect) error {
	lang := syntax.LangPOSIX
	if d == DialectBash {
		lang = syntax.LangBash
	}
	parser := syntax.NewParser(syntax.Variant(lang))
	if _, err := parser.Parse(strings.NewReader(script), ""); err != nil {
		return fmt.Errorf("emitted %s script does not parse: %w", d, err)
	}
	return nil
}
