package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opal-lang/rash/core/ast"
)

// callEdge is one call from a function to another user function.
type callEdge struct {
	callee string
	site   ast.Span
}

// detectRecursion reports every call cycle among user functions. Calls are
// inlined during lowering, so a cycle of any length can never terminate.
// Each cycle is reported once, at the call that closes it.
func detectRecursion(prog *ast.Program, funcs map[string]*ast.Function) []*ValidationError {
	graph := make(map[string][]callEdge, len(funcs))
	for name, fn := range funcs {
		for _, call := range ast.Calls(fn.Body) {
			if _, ok := funcs[call.Name]; ok && !call.Macro {
				graph[name] = append(graph[name], callEdge{callee: call.Name, site: call.NameLoc})
			}
		}
	}

	d := &recursionDetector{
		graph:    graph,
		visiting: make(map[string]bool),
		done:     make(map[string]bool),
		reported: make(map[string]bool),
	}
	for _, fn := range prog.Functions {
		if funcs[fn.Name] == fn {
			d.visit(fn.Name, nil)
		}
	}
	return d.errs
}

type recursionDetector struct {
	graph    map[string][]callEdge
	visiting map[string]bool // On the current DFS path
	done     map[string]bool // Fully explored
	reported map[string]bool // Cycle keys already reported
	errs     []*ValidationError
}

// visit performs depth-first search; a call to a function on the current
// path is a back edge and closes a cycle.
func (d *recursionDetector) visit(name string, path []string) {
	if d.done[name] {
		return
	}
	d.visiting[name] = true
	path = append(path, name)

	for _, edge := range d.graph[name] {
		if d.visiting[edge.callee] {
			d.reportCycle(path, edge)
			continue
		}
		d.visit(edge.callee, path)
	}

	delete(d.visiting, name)
	d.done[name] = true
}

func (d *recursionDetector) reportCycle(path []string, edge callEdge) {
	start := 0
	for i, fn := range path {
		if fn == edge.callee {
			start = i
			break
		}
	}
	cycle := append(append([]string(nil), path[start:]...), edge.callee)

	members := append([]string(nil), cycle[:len(cycle)-1]...)
	sort.Strings(members)
	key := strings.Join(members, ",")
	if d.reported[key] {
		return
	}
	d.reported[key] = true

	msg := fmt.Sprintf("recursive call cycle: %s", strings.Join(cycle, " -> "))
	if len(cycle) == 2 {
		msg = fmt.Sprintf("function `%s` calls itself", cycle[0])
	}
	d.errs = append(d.errs, &ValidationError{
		Kind:    KindRecursion,
		Span:    edge.site,
		Message: msg + "; recursion is not supported because calls are inlined",
		Cycle:   cycle,
	})
}
