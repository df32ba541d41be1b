package engine

import (
	"testing"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

func TestEvaluateNumeric(t *testing.T) {
	cases := []struct {
		name      string
		actual    string
		cond      domain.Condition
		threshold string
		want      bool
	}{
		{"gt true", "5", domain.CondGT, "3", true},
		{"gt false", "3", domain.CondGT, "5", false},
		{"lt true", "2.5", domain.CondLT, "3", true},
		{"gte boundary", "3", domain.CondGTE, "3", true},
		{"lte boundary", "3", domain.CondLTE, "3", true},
		{"equals numeric forms", "1.0", domain.CondEquals, "1", true},
		{"neq numeric", "0", domain.CondNEQ, "1", true},
		{"neq equal values", "1", domain.CondNEQ, "1.0", false},
		{"whitespace tolerated", " 4 ", domain.CondGT, "3", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.actual, tc.cond, tc.threshold); got != tc.want {
				t.Fatalf("Evaluate(%q, %s, %q) = %v, want %v", tc.actual, tc.cond, tc.threshold, got, tc.want)
			}
		})
	}
}

func TestEvaluateStringFallback(t *testing.T) {
	if !Evaluate("TRIP", domain.CondEquals, "TRIP") {
		t.Fatal("equals should fall back to string comparison")
	}
	if Evaluate("TRIP", domain.CondEquals, "trip") {
		t.Fatal("string fallback is case sensitive")
	}
	if !Evaluate("TRIP", domain.CondNEQ, "OK") {
		t.Fatal("neq should fall back to string comparison")
	}
	// "1.0" vs "1" only match when both parse as numbers.
	if !Evaluate("1.0", domain.CondEquals, "1") {
		t.Fatal("numeric coercion should win over string identity")
	}
}

func TestEvaluateDegradesToFalse(t *testing.T) {
	for _, cond := range []domain.Condition{domain.CondGT, domain.CondLT, domain.CondGTE, domain.CondLTE} {
		if Evaluate("abc", cond, "1") {
			t.Fatalf("%s with non-numeric operand must be false", cond)
		}
		if Evaluate("1", cond, "abc") {
			t.Fatalf("%s with non-numeric threshold must be false", cond)
		}
	}
	if Evaluate("1", "bogus", "1") {
		t.Fatal("unknown condition must be false")
	}
}
