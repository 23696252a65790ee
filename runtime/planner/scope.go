package planner

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/opal-lang/rash/core/types"
)

// VarEntry is a source binding resolved to its shell variable.
type VarEntry struct {
	ShellName string
	Type      types.Type
	Taint     types.Taint
}

// ScopeGraph tracks lexical scopes while lowering. Variables are resolved
// by walking up the parent chain. An inlined function body starts a sealed
// scope: it cannot see the bindings of its call site.
type ScopeGraph struct {
	current *Scope
}

// Scope is one source block.
type Scope struct {
	vars   map[string]VarEntry
	parent *Scope
	sealed bool
	depth  int
}

// NewScopeGraph creates a graph with an empty root scope.
func NewScopeGraph() *ScopeGraph {
	return &ScopeGraph{current: &Scope{vars: make(map[string]VarEntry)}}
}

// EnterScope creates a child scope and makes it current. A sealed scope
// hides every binding of its ancestors.
func (g *ScopeGraph) EnterScope(sealed bool) {
	g.current = &Scope{
		vars:   make(map[string]VarEntry),
		parent: g.current,
		sealed: sealed,
		depth:  g.current.depth + 1,
	}
}

// ExitScope returns to the parent scope.
func (g *ScopeGraph) ExitScope() error {
	if g.current.parent == nil {
		return fmt.Errorf("cannot exit root scope")
	}
	g.current = g.current.parent
	return nil
}

// Store binds name in the current scope.
func (g *ScopeGraph) Store(name string, entry VarEntry) {
	g.current.vars[name] = entry
}

// Resolve looks name up through the visible scopes.
func (g *ScopeGraph) Resolve(name string) (VarEntry, error) {
	for s := g.current; s != nil; s = s.parent {
		if entry, ok := s.vars[name]; ok {
			return entry, nil
		}
		if s.sealed {
			break
		}
	}
	return VarEntry{}, fmt.Errorf("variable %q not found in scope chain", name)
}

// Depth returns the nesting depth of the current scope.
func (g *ScopeGraph) Depth() int {
	return g.current.depth
}

// mangledPrefix marks shell names derived from user identifiers that could
// otherwise clobber the environment or the runtime library.
const mangledPrefix = "rash_v_"

// lowercaseEnv are the lowercase variables that tools commonly read from
// the environment. Assigning one would change what child commands see.
var lowercaseEnv = map[string]bool{
	"http_proxy":  true,
	"https_proxy": true,
	"ftp_proxy":   true,
	"all_proxy":   true,
	"no_proxy":    true,
	"rsync_proxy": true,
	"socks_proxy": true,
}

// Mangle maps a source identifier to a shell-safe variable name. Names
// without a lowercase letter (PATH, IFS, HOME, _), common lowercase
// environment variables (http_proxy, no_proxy) and names in the runtime
// library's rash_ namespace get a prefix.
func Mangle(name string) string {
	if strings.HasPrefix(name, "rash_") || lowercaseEnv[name] || strings.IndexFunc(name, unicode.IsLower) < 0 {
		return mangledPrefix + name
	}
	return name
}

// nameTable hands out shell variable names that are unique within one
// script. Shell variables are global, so two source bindings never share
// a name even when their scopes do not overlap.
type nameTable struct {
	used map[string]bool
}

func newNameTable() *nameTable {
	return &nameTable{used: make(map[string]bool)}
}

// fresh returns Mangle(base), suffixed with _1, _2, ... if taken.
func (t *nameTable) fresh(base string) string {
	base = Mangle(base)
	name := base
	for i := 1; t.used[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	t.used[name] = true
	return name
}
