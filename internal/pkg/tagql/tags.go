package tagql

// ExtractTags collects the tag literals referenced by an expression in
// pre-order, first-encountered order. Duplicates are removed by exact
// string match, so two literals differing only in case stay distinct,
// matching how they were written in the source text.
func ExtractTags(expr Expr) []string {
	var tags []string
	seen := make(map[string]struct{})

	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case TagExpr:
			if _, dup := seen[n.Name]; !dup {
				seen[n.Name] = struct{}{}
				tags = append(tags, n.Name)
			}
		case AndExpr:
			for _, child := range n.Children {
				walk(child)
			}
		case OrExpr:
			for _, child := range n.Children {
				walk(child)
			}
		case NotExpr:
			for _, child := range n.Children {
				walk(child)
			}
		}
	}

	if expr != nil {
		walk(expr)
	}
	return tags
}
