package engine

import (
	"github.com/tagmarks/tagmarks/internal/pkg/tagql"
)

// MatchTagQuery is a bridge function that calls the tag query evaluator.
func MatchTagQuery(node interface{}, row *ItemRow) bool {
	if node == nil {
		return true
	}
	if n, ok := node.(tagql.Expr); ok {
		return tagql.Evaluate(n, row.Tags)
	}
	return true // If node is not a valid tag query, pass through
}

// ParseTagQuery parses an expression string into a tag query tree.
// Returns nil if the expression is empty.
func ParseTagQuery(expr string) (interface{}, error) {
	if expr == "" {
		return nil, nil
	}
	return tagql.Parse(expr)
}
