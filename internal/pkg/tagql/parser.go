package tagql

import (
	"strings"
)

// Parse parses a boolean tag query into an expression tree.
// Operator keywords (AND, OR, NOT) are matched case-insensitively;
// precedence is NOT > AND > OR. It returns a *SyntaxError when the
// input is empty after trimming or when parentheses never balance.
func Parse(text string) (Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &SyntaxError{Msg: "empty expression"}
	}
	if strings.Contains(text, "(") {
		return parseGrouped(text)
	}
	return parsePrecedence(text)
}

// parseGrouped resolves the first innermost balanced parenthesis group:
// the group content is parsed on its own, then the whole string is
// re-parsed with that content substituted in place, unparenthesized.
//
// This is deliberately not full recursive grouping. Additional groups in
// the remainder are only handled by the depth-aware operator splits and
// the whole-string paren strip in parsePrecedence, so expressions like
// "(a OR b) AND (c OR d)" do not form the intuitive two-group tree.
// Saved expressions depend on this shape, so it stays.
func parseGrouped(text string) (Expr, error) {
	open := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			open = i
		case ')':
			if open < 0 {
				return nil, &SyntaxError{Msg: "unbalanced parentheses"}
			}
			inner := text[open+1 : i]
			if _, err := parsePrecedence(inner); err != nil {
				return nil, err
			}
			return parsePrecedence(text[:open] + inner + text[i+1:])
		}
	}
	return nil, &SyntaxError{Msg: "unbalanced parentheses"}
}

// parsePrecedence parses text with operator precedence. The NOT prefix
// is checked once against the whole current string, before any OR/AND
// splitting, so NOT consumes the entire remainder of this call as its
// single operand. NOT still shows up under AND/OR when it starts one of
// the split operands, since every operand re-enters this routine.
func parsePrecedence(text string) (Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &SyntaxError{Msg: "empty expression"}
	}

	if len(text) > 4 && strings.EqualFold(text[:4], "NOT ") {
		child, err := parsePrecedence(text[4:])
		if err != nil {
			return nil, err
		}
		return NotExpr{Children: []Expr{child}}, nil
	}

	if parts := splitTopLevel(text, " OR "); len(parts) >= 2 {
		children, err := parseParts(parts)
		if err != nil {
			return nil, err
		}
		return OrExpr{Children: children}, nil
	}

	if parts := splitTopLevel(text, " AND "); len(parts) >= 2 {
		children, err := parseParts(parts)
		if err != nil {
			return nil, err
		}
		return AndExpr{Children: children}, nil
	}

	if isWrapped(text) {
		return parsePrecedence(text[1 : len(text)-1])
	}

	return TagExpr{Name: text}, nil
}

func parseParts(parts []string) ([]Expr, error) {
	children := make([]Expr, 0, len(parts))
	for _, part := range parts {
		child, err := parsePrecedence(part)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// splitTopLevel splits text on a case-insensitive operator token,
// recognizing it only at parenthesis depth 0 so grouped operands
// survive unsplit.
func splitTopLevel(text, sep string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && i+len(sep) <= len(text) && strings.EqualFold(text[i:i+len(sep)], sep) {
			parts = append(parts, text[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	parts = append(parts, text[start:])
	return parts
}

// isWrapped reports whether text is one matching (...) pair around the
// whole string.
func isWrapped(text string) bool {
	if len(text) < 2 || text[0] != '(' || text[len(text)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i == len(text)-1
			}
		}
	}
	return false
}
