package tagql

// Expr is the interface implemented by all expression tree nodes.
// Trees are immutable once built; every operation over them is a pure read.
type Expr interface {
	expr() // marker method
}

// TagExpr is a leaf node matching a single tag literal.
// The name keeps the case it was written with; comparison at
// evaluation time is case-insensitive.
type TagExpr struct {
	Name string
}

func (TagExpr) expr() {}

// AndExpr is true when every child matches. The parser always builds
// it with two or more children.
type AndExpr struct {
	Children []Expr
}

func (AndExpr) expr() {}

// OrExpr is true when any child matches. The parser always builds
// it with two or more children.
type OrExpr struct {
	Children []Expr
}

func (OrExpr) expr() {}

// NotExpr negates its single child. Children is a slice so malformed
// arities stay representable; evaluate and serialize degrade safely
// when the count is not exactly one.
type NotExpr struct {
	Children []Expr
}

func (NotExpr) expr() {}

// SyntaxError reports an invalid query expression.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return e.Msg }
