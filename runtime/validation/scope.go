package validation

import (
	"github.com/opal-lang/rash/core/ast"
	"github.com/opal-lang/rash/core/types"
)

type binding struct {
	name  string
	typ   types.Type
	span  ast.Span
	param bool
	used  bool
}

// scope is one lexical block. Lookups walk outward through parents.
type scope struct {
	parent *scope
	names  map[string]*binding
	order  []*binding // Declaration order, for deterministic reports
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]*binding)}
}

func (s *scope) declare(b *binding) {
	s.names[b.name] = b
	s.order = append(s.order, b)
}

// local returns a binding declared directly in s.
func (s *scope) local(name string) *binding {
	return s.names[name]
}

func (s *scope) lookup(name string) *binding {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.names[name]; ok {
			return b
		}
	}
	return nil
}

// visible returns every name reachable from s, innermost first.
func (s *scope) visible() []string {
	var names []string
	seen := make(map[string]bool)
	for sc := s; sc != nil; sc = sc.parent {
		for _, b := range sc.order {
			if !seen[b.name] {
				seen[b.name] = true
				names = append(names, b.name)
			}
		}
	}
	return names
}
