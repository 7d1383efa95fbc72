package cql

// Children returns the direct operands of e in source order.
// Leaves return nil.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case And:
		return n.Args
	case Or:
		return n.Args
	case Not:
		return []Expr{n.Arg}
	case Comparison:
		return []Expr{n.Left, n.Right}
	case Between:
		return []Expr{n.Value, n.Lower, n.Upper}
	case Like:
		return []Expr{n.Value, n.Pattern}
	case In:
		return append([]Expr{n.Value}, n.List...)
	case IsNull:
		return []Expr{n.Arg}
	case Casei:
		return []Expr{n.Arg}
	case Accenti:
		return []Expr{n.Arg}
	case TemporalOp:
		return []Expr{n.Left, n.Right}
	case SpatialOp:
		return []Expr{n.Left, n.Right}
	case ArrayOp:
		return []Expr{n.Left, n.Right}
	case Function:
		return n.Args
	case IntervalExpr:
		return []Expr{n.Start, n.End}
	case ArrayLiteral:
		return n.Elems
	default:
		return nil
	}
}

// Walk visits e and its descendants depth-first in pre-order.
// If fn returns false the children of that node are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil {
		return
	}
	if !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Properties returns the distinct property names referenced by e in
// first-seen order.
func Properties(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(e, func(n Expr) bool {
		if p, ok := n.(Property); ok && !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
		return true
	})
	return names
}
