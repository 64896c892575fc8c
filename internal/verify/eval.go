package verify

import (
	"math"
	"regexp"
	"time"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/dataset"
)

// TypeChecking selects how int and real relate during verification.
type TypeChecking string

const (
	TypeCheckingSloppy TypeChecking = "sloppy"
	TypeCheckingStrict TypeChecking = "strict"
)

// fuzzyEpsilon is the floor applied when a bound carries the "fuzzy"
// precision and the policy epsilon is smaller.
const fuzzyEpsilon = 0.01

// TypesCompatible applies the typing policy to a declared/observed type
// pair.
func TypesCompatible(declared, observed constraints.FieldType, tc TypeChecking) bool {
	if declared == observed {
		return true
	}
	if tc == TypeCheckingStrict {
		return false
	}
	return declared.Numeric() && observed.Numeric()
}

// effectiveEpsilon widens the policy epsilon for fuzzy bounds.
func effectiveEpsilon(prec constraints.Precision, eps float64) float64 {
	if prec == constraints.PrecisionFuzzy && eps < fuzzyEpsilon {
		return fuzzyEpsilon
	}
	return eps
}

// valueOrdering maps a value onto the float scale bounds compare on.
func valueOrdering(v dataset.Value) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case time.Time:
		return float64(val.UnixNano()), true
	default:
		return 0, false
	}
}

// boundOrdering maps a document bound scalar onto the same scale as the
// field's values. Date fields carry bounds as strings.
func boundOrdering(scalar any, fieldType constraints.FieldType) (float64, bool) {
	if fieldType == constraints.TypeDate {
		s, ok := scalar.(string)
		if !ok {
			return 0, false
		}
		t, ok := constraints.ParseDateScalar(s)
		if !ok {
			return 0, false
		}
		return float64(t.UnixNano()), true
	}
	switch val := scalar.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

// BoundSatisfied evaluates one value against a min or max bound with
// the fuzzy-comparison rule. Epsilon applies to numeric bounds only;
// string bounds compare lexically and date bounds exactly. The second
// result is false when the value and bound share no ordering.
func BoundSatisfied(v dataset.Value, bound *constraints.Bound, isMin bool,
	fieldType constraints.FieldType, eps float64) (bool, bool) {

	if s, ok := v.(string); ok {
		bs, bok := bound.Value.(string)
		if !bok {
			return false, false
		}
		if bound.Precision == constraints.PrecisionOpen {
			if isMin {
				return s > bs, true
			}
			return s < bs, true
		}
		if isMin {
			return s >= bs, true
		}
		return s <= bs, true
	}

	vf, ok := valueOrdering(v)
	if !ok {
		return false, false
	}
	bf, ok := boundOrdering(bound.Value, fieldType)
	if !ok {
		return false, false
	}

	fuzz := 0.0
	if fieldType.Numeric() {
		fuzz = effectiveEpsilon(bound.Precision, eps) * math.Max(1, math.Abs(bf))
	}
	if isMin {
		if bound.Precision == constraints.PrecisionOpen {
			return vf > bf-fuzz, true
		}
		return vf >= bf-fuzz, true
	}
	if bound.Precision == constraints.PrecisionOpen {
		return vf < bf+fuzz, true
	}
	return vf <= bf+fuzz, true
}

// SignSatisfied checks a single numeric value against a sign
// constraint.
func SignSatisfied(v dataset.Value, sign constraints.Sign) (bool, bool) {
	f, ok := valueOrdering(v)
	if !ok {
		return false, false
	}
	switch sign {
	case constraints.SignPositive:
		return f > 0, true
	case constraints.SignNonNegative:
		return f >= 0, true
	case constraints.SignZero:
		return f == 0, true
	case constraints.SignNonPositive:
		return f <= 0, true
	case constraints.SignNegative:
		return f < 0, true
	case constraints.SignNull:
		// A non-null value cannot satisfy the all-null sign.
		return false, true
	default:
		return false, false
	}
}

// ScalarMatchesValue compares a document scalar against a dataset
// value, conflating int and real and coercing date strings.
func ScalarMatchesValue(scalar any, v dataset.Value) bool {
	if t, ok := v.(time.Time); ok {
		s, sok := scalar.(string)
		if !sok {
			return false
		}
		parsed, pok := constraints.ParseDateScalar(s)
		return pok && parsed.Equal(t)
	}
	if sf, ok := scalarFloat(scalar); ok {
		if vf, vok := valueFloat(v); vok {
			return sf == vf
		}
		return false
	}
	switch sv := scalar.(type) {
	case string:
		vs, ok := v.(string)
		return ok && sv == vs
	case bool:
		vb, ok := v.(bool)
		return ok && sv == vb
	default:
		return false
	}
}

// ValueInSet reports whether a dataset value matches any allowed
// scalar.
func ValueInSet(v dataset.Value, set []any) bool {
	for _, scalar := range set {
		if ScalarMatchesValue(scalar, v) {
			return true
		}
	}
	return false
}

func scalarFloat(scalar any) (float64, bool) {
	switch val := scalar.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

func valueFloat(v dataset.Value) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

// CompileRex compiles a pattern list with full-match anchoring.
func CompileRex(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(constraints.Anchor(pattern))
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// MatchesAny tries patterns in order, stopping at the first match.
func MatchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// CompareValues orders two dataset values of compatible types.
func CompareValues(a, b dataset.Value) (int, bool) {
	if as, ok := a.(string); ok {
		bs, bok := b.(string)
		if !bok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	af, aok := valueOrdering(a)
	bf, bok := valueOrdering(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}
