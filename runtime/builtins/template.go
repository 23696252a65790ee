package builtins

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one piece of a parsed template: literal shell text, or a
// reference to an argument.
type Segment struct {
	Text string // Literal shell text when Arg < 0
	Arg  int    // Argument index, or -1 for text
	Raw  bool   // %iN: splice the literal argument unquoted
}

// IsText reports whether the segment is literal shell text.
func (s Segment) IsText() bool {
	return s.Arg < 0
}

// Template is a parsed builtin template.
type Template struct {
	Source   string
	Segments []Segment
}

// ParseTemplate splits src into text and argument segments and checks every
// placeholder against params.
//
// Placeholders:
//
//	%N   argument N as a quoted shell word
//	%iN  argument N spliced raw; the parameter must be literal
//	%%   a literal percent sign
//
// Value templates are spliced inside a double-quoted word, so %N may only
// appear inside a $(...) command substitution there.
func ParseTemplate(src string, kind Kind, params []Param) (Template, error) {
	t := Template{Source: src}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			t.Segments = append(t.Segments, Segment{Text: text.String(), Arg: -1})
			text.Reset()
		}
	}

	subst := 0 // open $( ... ) groups, counting nested parens
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '$' && i+1 < len(src) && src[i+1] == '(':
			subst++
			text.WriteString("$(")
			i++
			continue
		case c == '(' && subst > 0:
			subst++
		case c == ')' && subst > 0:
			subst--
		case c == '"' && kind == KindValue && subst == 0:
			return Template{}, fmt.Errorf("template %q: value templates cannot contain '\"' outside $(...)", src)
		}
		if c != '%' {
			text.WriteByte(c)
			continue
		}

		if i+1 >= len(src) {
			return Template{}, fmt.Errorf("template %q: dangling '%%' at offset %d", src, i)
		}
		start := i
		i++
		if src[i] == '%' {
			text.WriteByte('%')
			continue
		}
		raw := false
		if src[i] == 'i' {
			raw = true
			i++
		}
		j := i
		for j < len(src) && src[j] >= '0' && src[j] <= '9' {
			j++
		}
		if j == i {
			return Template{}, fmt.Errorf("template %q: malformed placeholder at offset %d", src, start)
		}
		idx, err := strconv.Atoi(src[i:j])
		if err != nil || idx >= len(params) {
			return Template{}, fmt.Errorf("template %q: placeholder %s refers to a missing parameter", src, src[start:j])
		}
		if raw && !params[idx].Literal {
			return Template{}, fmt.Errorf("template %q: raw placeholder %s requires literal parameter %q", src, src[start:j], params[idx].Name)
		}
		if !raw && kind == KindValue && subst == 0 {
			return Template{}, fmt.Errorf("template %q: quoted placeholder %s must be inside $(...) in a value template", src, src[start:j])
		}
		flush()
		t.Segments = append(t.Segments, Segment{Arg: idx, Raw: raw})
		i = j - 1
	}
	if subst > 0 {
		return Template{}, fmt.Errorf("template %q: unclosed $(", src)
	}
	flush()
	return t, nil
}

// Uses reports whether argument idx appears in the template.
func (t Template) Uses(idx int) bool {
	for _, s := range t.Segments {
		if s.Arg == idx {
			return true
		}
	}
	return false
}

// Expand renders the template, rendering each argument with arg(index, raw).
func (t Template) Expand(arg func(idx int, raw bool) string) string {
	var b strings.Builder
	for _, s := range t.Segments {
		if s.IsText() {
			b.WriteString(s.Text)
			continue
		}
		b.WriteString(arg(s.Arg, s.Raw))
	}
	return b.String()
}
