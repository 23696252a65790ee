package ast

// Inspect traverses the tree rooted at node in depth-first source order,
// calling f for each node. If f returns false, the children of that node
// are skipped.
func Inspect(node Node, f func(Node) bool) {
	if node == nil || !f(node) {
		return
	}

	switch n := node.(type) {
	case *Program:
		for _, fn := range n.Functions {
			Inspect(fn, f)
		}
	case *Function:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		Inspect(n.Body, f)
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}

	case *LetStmt:
		Inspect(n.Value, f)
	case *IfStmt:
		for _, arm := range n.Arms {
			Inspect(arm.Cond, f)
			Inspect(arm.Body, f)
		}
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *BlockStmt:
		Inspect(n.Body, f)
	case *ReturnStmt:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *ExprStmt:
		Inspect(n.X, f)
	case *MatchStmt:
		Inspect(n.Subject, f)
		for _, arm := range n.Arms {
			for _, p := range arm.Patterns {
				Inspect(p, f)
			}
			Inspect(arm.Body, f)
		}

	case *BinaryExpr:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *UnaryExpr:
		Inspect(n.X, f)
	case *CallExpr:
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *FormatExpr:
		for _, seg := range n.Segments {
			if seg.Arg != nil {
				Inspect(seg.Arg, f)
			}
		}
	case *MethodCallExpr:
		Inspect(n.Receiver, f)
	}
}

// Calls returns every call expression under node in source order.
func Calls(node Node) []*CallExpr {
	var calls []*CallExpr
	Inspect(node, func(n Node) bool {
		if c, ok := n.(*CallExpr); ok {
			calls = append(calls, c)
		}
		return true
	})
	return calls
}
