package tagql

import (
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		query    string
		tags     []string
		expected bool
	}{
		{"golang", []string{"golang"}, true},
		{"golang", []string{}, false},
		{"golang", nil, false},

		// Tag matching is case-insensitive in every direction.
		{"AI", []string{"ai"}, true},
		{"ai", []string{"Ai"}, true},
		{"ai", []string{"aI"}, true},

		// AND is strict conjunction.
		{"a AND b", []string{"a"}, false},
		{"a AND b", []string{"b"}, false},
		{"a AND b", []string{"a", "b"}, true},
		{"a AND b AND c", []string{"a", "b"}, false},
		{"a AND b AND c", []string{"a", "b", "c"}, true},

		// OR is inclusive disjunction.
		{"a OR b", []string{"a"}, true},
		{"a OR b", []string{"b"}, true},
		{"a OR b", []string{"a", "b"}, true},
		{"a OR b", []string{"c"}, false},

		// NOT inverts its operand.
		{"NOT a", []string{}, true},
		{"NOT a", []string{"a"}, false},
		{"NOT a", []string{"b"}, true},

		// Precedence: AND binds before OR.
		{"ai AND analysis OR writing", []string{"writing"}, true},
		{"ai AND analysis OR writing", []string{"ai"}, false},
		{"ai AND analysis OR writing", []string{"ai", "analysis"}, true},

		{"NOT (a OR b)", []string{"c"}, true},
		{"NOT (a OR b)", []string{"b"}, false},
		{"a AND NOT b", []string{"a"}, true},
		{"a AND NOT b", []string{"a", "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			expr, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if got := Evaluate(expr, tt.tags); got != tt.expected {
				t.Errorf("Evaluate(%q, %v) = %v, want %v", tt.query, tt.tags, got, tt.expected)
			}
		})
	}
}

func TestEvaluateDefensive(t *testing.T) {
	// Shapes the parser never produces still evaluate safely.
	if Evaluate(nil, []string{"a"}) {
		t.Error("nil expression should not match")
	}
	if Evaluate(NotExpr{}, []string{"a"}) {
		t.Error("childless NOT should evaluate false")
	}
	if Evaluate(NotExpr{Children: []Expr{TagExpr{Name: "a"}, TagExpr{Name: "b"}}}, nil) {
		t.Error("two-child NOT should evaluate false")
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	// The tree is immutable after Parse, so concurrent Evaluate calls on
	// the same tree need no coordination.
	expr, err := Parse("a AND b OR NOT c")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				Evaluate(expr, []string{"a", "b"})
				Evaluate(expr, []string{"c"})
			}
			done <- true
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
