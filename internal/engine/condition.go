// Package engine implements the fault detection and arbitration core:
// condition evaluation, debounce tracking, rule matching, percentage
// rate evaluation, master rule arbitration, per-unit winner selection
// and incident deduplication.
package engine

import (
	"strconv"
	"strings"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// Evaluate applies one comparison. Both operands are coerced to
// numbers first; when either fails to parse, only equals/neq fall back
// to string comparison and every other condition degrades to false.
// That degrade-to-false policy is deliberate: a malformed sample must
// never raise a fault on its own.
func Evaluate(actual string, cond domain.Condition, threshold string) bool {
	av, aerr := parseNumber(actual)
	tv, terr := parseNumber(threshold)

	if aerr != nil || terr != nil {
		switch cond {
		case domain.CondEquals:
			return actual == threshold
		case domain.CondNEQ:
			return actual != threshold
		}
		return false
	}

	switch cond {
	case domain.CondGT:
		return av > tv
	case domain.CondLT:
		return av < tv
	case domain.CondGTE:
		return av >= tv
	case domain.CondLTE:
		return av <= tv
	case domain.CondEquals:
		return av == tv
	case domain.CondNEQ:
		return av != tv
	}
	return false
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
