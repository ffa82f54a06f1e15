package tagql

import (
	"strings"
)

// Evaluate walks the expression tree against a candidate tag set and
// reports whether it matches. Tag comparison is case-insensitive.
// It is total: malformed or unknown node shapes evaluate to false
// rather than failing, and a nil expression never matches.
func Evaluate(expr Expr, tags []string) bool {
	switch n := expr.(type) {
	case TagExpr:
		for _, tag := range tags {
			if strings.EqualFold(tag, n.Name) {
				return true
			}
		}
		return false
	case AndExpr:
		for _, child := range n.Children {
			if !Evaluate(child, tags) {
				return false
			}
		}
		return true
	case OrExpr:
		for _, child := range n.Children {
			if Evaluate(child, tags) {
				return true
			}
		}
		return false
	case NotExpr:
		if len(n.Children) != 1 {
			return false
		}
		return !Evaluate(n.Children[0], tags)
	default:
		return false
	}
}
