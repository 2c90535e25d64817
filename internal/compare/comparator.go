// Package compare implements the value comparator: a single operator
// applied to an (actual, expected) pair. A bad predicate never
// panics; it logs and returns false.
package compare

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"fluxflag/internal/jsonval"
	"fluxflag/internal/logger"
)

type Operator string

const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpEqualCI          Operator = "==_ci"
	OpNotEqualCI       Operator = "!=_ci"
	OpLessThan         Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpGreaterThan      Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpIn               Operator = "in"
	OpNotIn            Operator = "not_in"
	OpContains         Operator = "contains"
	OpContainsCI       Operator = "contains_ci"
	OpStartsWith       Operator = "starts_with"
	OpStartsWithCI     Operator = "starts_with_ci"
	OpEndsWith         Operator = "ends_with"
	OpEndsWithCI       Operator = "ends_with_ci"
	OpRegex            Operator = "regex"
)

// Comparator applies a single operator to an (actual, expected) pair.
// Regex compile failures and unknown operators are logged at warn level
// and degrade to false.
type Comparator struct {
	log logger.Logger
}

func New(log logger.Logger) *Comparator {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Comparator{log: log}
}

// Compare evaluates actual <op> expected. Both operands are tagged
// jsonval.Value so ordering operators can attempt numeric comparison
// before falling back to lexicographic, and in/not_in can distinguish a
// real array from a comma-separated string.
func (c *Comparator) Compare(actual jsonval.Value, op Operator, expected jsonval.Value) bool {
	switch op {
	case OpEqual:
		return actual.AsString() == expected.AsString()
	case OpNotEqual:
		return actual.AsString() != expected.AsString()
	case OpEqualCI:
		return strings.EqualFold(actual.AsString(), expected.AsString())
	case OpNotEqualCI:
		return !strings.EqualFold(actual.AsString(), expected.AsString())
	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		return c.compareOrdering(actual, op, expected)
	case OpIn:
		return c.membership(actual, expected)
	case OpNotIn:
		return !c.membership(actual, expected)
	case OpContains, OpContainsCI:
		return strings.Contains(strings.ToLower(actual.AsString()), strings.ToLower(expected.AsString()))
	case OpStartsWith:
		return strings.HasPrefix(actual.AsString(), expected.AsString())
	case OpStartsWithCI:
		return strings.HasPrefix(strings.ToLower(actual.AsString()), strings.ToLower(expected.AsString()))
	case OpEndsWith:
		return strings.HasSuffix(actual.AsString(), expected.AsString())
	case OpEndsWithCI:
		return strings.HasSuffix(strings.ToLower(actual.AsString()), strings.ToLower(expected.AsString()))
	case OpRegex:
		return c.regexMatch(actual.AsString(), expected.AsString())
	default:
		c.log.Warnw("unknown comparator operator, evaluating to false", "operator", string(op))
		return false
	}
}

func (c *Comparator) compareOrdering(actual jsonval.Value, op Operator, expected jsonval.Value) bool {
	an, aok := actual.AsNumber()
	en, eok := expected.AsNumber()
	if aok && eok {
		switch op {
		case OpLessThan:
			return an < en
		case OpLessOrEqual:
			return an <= en
		case OpGreaterThan:
			return an > en
		case OpGreaterOrEqual:
			return an >= en
		}
	}

	as, es := actual.AsString(), expected.AsString()
	switch op {
	case OpLessThan:
		return as < es
	case OpLessOrEqual:
		return as <= es
	case OpGreaterThan:
		return as > es
	case OpGreaterOrEqual:
		return as >= es
	}
	return false
}

func (c *Comparator) membership(actual jsonval.Value, expected jsonval.Value) bool {
	needle := strings.ToLower(actual.AsString())
	for _, candidate := range expected.AsStringSlice() {
		if strings.ToLower(candidate) == needle {
			return true
		}
	}
	return false
}

func (c *Comparator) regexMatch(actual, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		c.log.Warnw("regex compile failed, evaluating to false", "pattern", pattern, "error", err)
		return false
	}
	return re.MatchString(actual)
}

// IsFiniteNumber reports whether s parses as a finite base-10 number,
// used by callers that need to decide numeric-vs-lexicographic
// formatting before they ever reach the comparator (e.g. count values).
func IsFiniteNumber(s string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}
