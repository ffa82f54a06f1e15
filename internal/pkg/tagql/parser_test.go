package tagql

import (
	"errors"
	"testing"
)

func TestParseTag(t *testing.T) {
	expr, err := Parse("  golang  ")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	tag, ok := expr.(TagExpr)
	if !ok || tag.Name != "golang" {
		t.Errorf("expected TagExpr golang, got %+v", expr)
	}
}

func TestParsePrecedence(t *testing.T) {
	// AND binds tighter than OR.
	expr, err := Parse("a AND b OR c")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	or, ok := expr.(OrExpr)
	if !ok {
		t.Fatalf("expected OrExpr at root, got %+v", expr)
	}
	if len(or.Children) != 2 {
		t.Fatalf("expected 2 OR children, got %d", len(or.Children))
	}

	and, ok := or.Children[0].(AndExpr)
	if !ok || len(and.Children) != 2 {
		t.Errorf("expected AndExpr with 2 children first, got %+v", or.Children[0])
	}
	if tag, ok := or.Children[1].(TagExpr); !ok || tag.Name != "c" {
		t.Errorf("expected tag c second, got %+v", or.Children[1])
	}
}

func TestParseMultiwayAnd(t *testing.T) {
	expr, err := Parse("a AND b AND c")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	and, ok := expr.(AndExpr)
	if !ok || len(and.Children) != 3 {
		t.Fatalf("expected 3-child AndExpr, got %+v", expr)
	}
}

func TestParseOperatorCase(t *testing.T) {
	for _, input := range []string{"a and b", "a And b", "a AND b"} {
		t.Run(input, func(t *testing.T) {
			expr, err := Parse(input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if _, ok := expr.(AndExpr); !ok {
				t.Errorf("expected AndExpr, got %+v", expr)
			}
		})
	}
}

func TestParseNot(t *testing.T) {
	expr, err := Parse("NOT archived")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	not, ok := expr.(NotExpr)
	if !ok || len(not.Children) != 1 {
		t.Fatalf("expected single-child NotExpr, got %+v", expr)
	}
	if tag, ok := not.Children[0].(TagExpr); !ok || tag.Name != "archived" {
		t.Errorf("expected tag archived, got %+v", not.Children[0])
	}
}

func TestParseNotConsumesRemainder(t *testing.T) {
	// A leading NOT takes the whole rest of the string as its operand.
	expr, err := Parse("NOT a AND b")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	not, ok := expr.(NotExpr)
	if !ok || len(not.Children) != 1 {
		t.Fatalf("expected NotExpr at root, got %+v", expr)
	}
	if _, ok := not.Children[0].(AndExpr); !ok {
		t.Errorf("expected AndExpr operand, got %+v", not.Children[0])
	}
}

func TestParseNotAsOperand(t *testing.T) {
	// NOT at the start of a split operand stays inside that operand.
	expr, err := Parse("a AND NOT b")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	and, ok := expr.(AndExpr)
	if !ok || len(and.Children) != 2 {
		t.Fatalf("expected AndExpr, got %+v", expr)
	}
	if _, ok := and.Children[1].(NotExpr); !ok {
		t.Errorf("expected NotExpr second operand, got %+v", and.Children[1])
	}
}

func TestParseGroup(t *testing.T) {
	expr, err := Parse("NOT (a OR b)")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	not, ok := expr.(NotExpr)
	if !ok || len(not.Children) != 1 {
		t.Fatalf("expected NotExpr, got %+v", expr)
	}
	if _, ok := not.Children[0].(OrExpr); !ok {
		t.Errorf("expected OrExpr operand, got %+v", not.Children[0])
	}
}

func TestParseGroupSurvivesSplit(t *testing.T) {
	// A second parenthesized group stays intact through the depth-aware
	// operator split.
	expr, err := Parse("(a OR b) AND (c OR d)")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	// The first group dissolves into the surrounding precedence parse,
	// so the root is OR, not the intuitive two-group AND.
	or, ok := expr.(OrExpr)
	if !ok {
		t.Fatalf("expected OrExpr at root, got %+v", expr)
	}
	and, ok := or.Children[1].(AndExpr)
	if !ok {
		t.Fatalf("expected AndExpr second operand, got %+v", or.Children[1])
	}
	if _, ok := and.Children[1].(OrExpr); !ok {
		t.Errorf("expected grouped OrExpr inside AND, got %+v", and.Children[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"unbalanced open", "(a AND b"},
		{"nested unbalanced", "x AND (a"},
		{"stray close", ")a AND (b)"},
		{"empty group", "()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Errorf("expected *SyntaxError, got %T", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"a AND b", true},
		{"NOT (a OR b)", true},
		{"", false},
		{"(a AND b", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := Validate(tt.input)
			if v.Valid != tt.valid {
				t.Errorf("Validate(%q).Valid = %v, want %v", tt.input, v.Valid, tt.valid)
			}
			if !tt.valid && v.Error == "" {
				t.Error("invalid result should carry an error message")
			}
			if tt.valid && v.Error != "" {
				t.Errorf("valid result should not carry an error, got %q", v.Error)
			}
		})
	}
}
