package tagql

import (
	"strings"
)

// Serialize renders an expression tree back to its canonical text form.
// OR children of an AND node get precedence-clarifying parentheses;
// everything else joins bare. It is total: defective nodes render as
// placeholders instead of failing.
func Serialize(expr Expr) string {
	switch n := expr.(type) {
	case TagExpr:
		return n.Name
	case AndExpr:
		parts := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			s := Serialize(child)
			if _, isOr := child.(OrExpr); isOr {
				s = "(" + s + ")"
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " AND ")
	case OrExpr:
		parts := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			parts = append(parts, Serialize(child))
		}
		return strings.Join(parts, " OR ")
	case NotExpr:
		if len(n.Children) != 1 {
			return "NOT ?"
		}
		if tag, isTag := n.Children[0].(TagExpr); isTag {
			return "NOT " + tag.Name
		}
		return "NOT (" + Serialize(n.Children[0]) + ")"
	default:
		return "?"
	}
}
