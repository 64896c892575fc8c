// Package verify evaluates a constraints document against a dataset,
// producing a structured report of per-constraint outcomes.
package verify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/dataset"
)

// ReportMode selects how much of the report is retained.
type ReportMode string

const (
	ReportAll          ReportMode = "all"
	ReportFailuresOnly ReportMode = "failures_only"
)

// Policy bundles the verification-time knobs. The zero value means
// exact numeric comparison, sloppy typing, full report.
type Policy struct {
	Epsilon      float64
	TypeChecking TypeChecking
	ReportMode   ReportMode
	// Workers bounds concurrent field evaluation; 0 means one
	// goroutine per field.
	Workers int
}

func (p Policy) typeChecking() TypeChecking {
	if p.TypeChecking == "" {
		return TypeCheckingSloppy
	}
	return p.TypeChecking
}

// Verify evaluates every constraint in the document against the
// dataset. Constraints are independent: one failure never suppresses
// the others. The report preserves document field order.
func Verify(ctx context.Context, ds dataset.Dataset, doc *constraints.DatasetConstraints, pol Policy) (*Report, error) {
	positions := fieldPositions(ds)

	fieldReports := make([]FieldReport, len(doc.Fields))
	g, gctx := errgroup.WithContext(ctx)
	if pol.Workers > 0 {
		g.SetLimit(pol.Workers)
	}
	for i, fe := range doc.Fields {
		g.Go(func() error {
			report, err := verifyField(gctx, ds, fe.Name, fe.Constraints, pol, positions)
			if err != nil {
				return err
			}
			fieldReports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{ID: uuid.NewString()}
	for _, fr := range fieldReports {
		report.Passes += fr.Passes
		report.Failures += fr.Failures
		for _, r := range fr.Results {
			if r.Outcome == OutcomeNotApplicable {
				report.NotApplicable++
			}
		}
		if pol.ReportMode == ReportFailuresOnly {
			fr = filterFailures(fr)
			if len(fr.Results) == 0 {
				continue
			}
		}
		report.Fields = append(report.Fields, fr)
	}

	for _, group := range doc.Groups {
		gr, err := verifyGroup(ctx, ds, group, positions)
		if err != nil {
			return nil, err
		}
		switch gr.Outcome {
		case OutcomePass:
			report.Passes++
		case OutcomeFail:
			report.Failures++
		default:
			report.NotApplicable++
		}
		if pol.ReportMode == ReportFailuresOnly && gr.Outcome != OutcomeFail {
			continue
		}
		report.Groups = append(report.Groups, gr)
	}

	slog.Info("Verification complete", "id", report.ID,
		"passes", report.Passes, "failures", report.Failures)
	return report, nil
}

func fieldPositions(ds dataset.Dataset) map[string]int {
	positions := make(map[string]int)
	for i, f := range ds.Fields() {
		positions[f.Name] = i
	}
	return positions
}

func filterFailures(fr FieldReport) FieldReport {
	kept := fr.Results[:0:0]
	for _, r := range fr.Results {
		if r.Outcome == OutcomeFail {
			kept = append(kept, r)
		}
	}
	fr.Results = kept
	return fr
}

func verifyField(ctx context.Context, ds dataset.Dataset, name string,
	fc *constraints.FieldConstraints, pol Policy, positions map[string]int) (FieldReport, error) {

	report := FieldReport{Field: name}
	list := fc.List()

	pos, present := positions[name]
	if !present {
		for _, c := range list {
			report.Results = append(report.Results, ConstraintResult{
				Kind:    c.Kind,
				Outcome: OutcomeFail,
				Reason:  ReasonMissingField,
				Message: fmt.Sprintf("field %q is not in the dataset", name),
			})
		}
		report.Failures = len(report.Results)
		return report, nil
	}

	stats, err := ds.FieldStats(ctx, name)
	if err != nil {
		return FieldReport{}, fmt.Errorf("statistics for field %q: %w", name, err)
	}

	for _, c := range list {
		var result ConstraintResult
		if stats.TotalCount == 0 {
			// Nothing observed at all: no constraint can be meaningfully
			// checked against an empty column.
			result = ConstraintResult{Kind: c.Kind, Outcome: OutcomeNotApplicable}
		} else {
			result, err = evalConstraint(ctx, ds, pos, stats, c, pol)
			if err != nil {
				return FieldReport{}, fmt.Errorf("field %q, constraint %s: %w", name, c.Kind, err)
			}
		}
		switch result.Outcome {
		case OutcomePass:
			report.Passes++
		case OutcomeFail:
			report.Failures++
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func evalConstraint(ctx context.Context, ds dataset.Dataset, pos int,
	stats *dataset.FieldStats, c constraints.Constraint, pol Policy) (ConstraintResult, error) {

	switch c.Kind {
	case constraints.KindType:
		return evalType(stats, c, pol), nil
	case constraints.KindMin:
		return evalBound(stats, c, true, pol), nil
	case constraints.KindMax:
		return evalBound(stats, c, false, pol), nil
	case constraints.KindSign:
		return evalSign(stats, c), nil
	case constraints.KindMinLength:
		return evalLength(stats, c, true), nil
	case constraints.KindMaxLength:
		return evalLength(stats, c, false), nil
	case constraints.KindMaxNulls:
		return evalMaxNulls(stats, c), nil
	case constraints.KindNoDuplicates:
		return evalNoDuplicates(stats, c), nil
	case constraints.KindAllowedValues:
		return evalAllowedValues(ctx, ds, pos, stats, c)
	case constraints.KindRex:
		return evalRex(ctx, ds, pos, stats, c)
	default:
		return ConstraintResult{Kind: c.Kind, Outcome: OutcomeNotApplicable}, nil
	}
}

func pass(kind constraints.Kind) ConstraintResult {
	return ConstraintResult{Kind: kind, Outcome: OutcomePass}
}

func fail(kind constraints.Kind, reason, message string, value any) ConstraintResult {
	return ConstraintResult{Kind: kind, Outcome: OutcomeFail, Reason: reason, Message: message, Value: value}
}

func inapplicable(kind constraints.Kind, fieldType constraints.FieldType) ConstraintResult {
	return fail(kind, ReasonInapplicable,
		fmt.Sprintf("constraint cannot apply to a %s field", fieldType), string(fieldType))
}

func evalType(stats *dataset.FieldStats, c constraints.Constraint, pol Policy) ConstraintResult {
	if TypesCompatible(c.Type, stats.Type, pol.typeChecking()) {
		return pass(c.Kind)
	}
	return fail(c.Kind, ReasonTypeMismatch,
		fmt.Sprintf("expected %s, observed %s", c.Type, stats.Type), string(stats.Type))
}

func evalBound(stats *dataset.FieldStats, c constraints.Constraint, isMin bool, pol Policy) ConstraintResult {
	if stats.Type == constraints.TypeBool {
		return inapplicable(c.Kind, stats.Type)
	}
	if stats.NonNullCount == 0 {
		return pass(c.Kind)
	}
	extremum := stats.Min
	reason := ReasonBelowMin
	if !isMin {
		extremum = stats.Max
		reason = ReasonAboveMax
	}
	ok, comparable := BoundSatisfied(extremum, c.Bound, isMin, stats.Type, pol.Epsilon)
	if !comparable {
		return fail(c.Kind, ReasonInapplicable,
			fmt.Sprintf("bound %v is not comparable with %s values", c.Bound.Value, stats.Type),
			constraints.ScalarFromValue(extremum))
	}
	if ok {
		return pass(c.Kind)
	}
	word := "minimum"
	if !isMin {
		word = "maximum"
	}
	return fail(c.Kind, reason,
		fmt.Sprintf("observed %s %v violates bound %v", word, constraints.ScalarFromValue(extremum), c.Bound.Value),
		constraints.ScalarFromValue(extremum))
}

func evalSign(stats *dataset.FieldStats, c constraints.Constraint) ConstraintResult {
	if !stats.Type.Numeric() {
		return inapplicable(c.Kind, stats.Type)
	}
	if stats.NonNullCount == 0 {
		return pass(c.Kind)
	}
	if c.Sign == constraints.SignNull {
		return fail(c.Kind, ReasonSignViolation,
			fmt.Sprintf("%d non-null values in an all-null field", stats.NonNullCount),
			stats.NonNullCount)
	}
	for _, extremum := range []dataset.Value{stats.Min, stats.Max} {
		if ok, evaluable := SignSatisfied(extremum, c.Sign); evaluable && !ok {
			return fail(c.Kind, ReasonSignViolation,
				fmt.Sprintf("observed value %v is not %s", extremum, c.Sign), extremum)
		}
	}
	return pass(c.Kind)
}

func evalLength(stats *dataset.FieldStats, c constraints.Constraint, isMin bool) ConstraintResult {
	if stats.Type != constraints.TypeString {
		return inapplicable(c.Kind, stats.Type)
	}
	if !stats.HasLengths {
		return pass(c.Kind)
	}
	if isMin {
		if int64(stats.MinLength) >= c.N {
			return pass(c.Kind)
		}
		return fail(c.Kind, ReasonLengthBelowMin,
			fmt.Sprintf("shortest value has length %d, minimum is %d", stats.MinLength, c.N),
			stats.MinLength)
	}
	if int64(stats.MaxLength) <= c.N {
		return pass(c.Kind)
	}
	return fail(c.Kind, ReasonLengthAboveMax,
		fmt.Sprintf("longest value has length %d, maximum is %d", stats.MaxLength, c.N),
		stats.MaxLength)
}

func evalMaxNulls(stats *dataset.FieldStats, c constraints.Constraint) ConstraintResult {
	if stats.NullCount <= c.N {
		return pass(c.Kind)
	}
	return fail(c.Kind, ReasonTooManyNulls,
		fmt.Sprintf("%d nulls observed, at most %d allowed", stats.NullCount, c.N),
		stats.NullCount)
}

func evalNoDuplicates(stats *dataset.FieldStats, c constraints.Constraint) ConstraintResult {
	if !c.Flag {
		return pass(c.Kind)
	}
	if stats.DistinctCount == stats.NonNullCount {
		return pass(c.Kind)
	}
	excess := stats.NonNullCount - stats.DistinctCount
	return fail(c.Kind, ReasonDuplicateValues,
		fmt.Sprintf("%d duplicated values", excess), excess)
}

func evalAllowedValues(ctx context.Context, ds dataset.Dataset, pos int,
	stats *dataset.FieldStats, c constraints.Constraint) (ConstraintResult, error) {

	if !stats.DistinctTruncated {
		for _, v := range stats.DistinctValues {
			if !ValueInSet(v, c.Values) {
				return failedValue(c, v), nil
			}
		}
		return pass(c.Kind), nil
	}
	// The distinct sample is capped; fall back to scanning rows and stop
	// at the first counterexample.
	offender, found, err := scanForOffender(ctx, ds, pos, func(v dataset.Value) bool {
		return ValueInSet(v, c.Values)
	})
	if err != nil {
		return ConstraintResult{}, err
	}
	if found {
		return failedValue(c, offender), nil
	}
	return pass(c.Kind), nil
}

func failedValue(c constraints.Constraint, v dataset.Value) ConstraintResult {
	scalar := constraints.ScalarFromValue(v)
	return fail(c.Kind, ReasonDisallowedValue,
		fmt.Sprintf("value %v is not in the allowed set", scalar), scalar)
}

func evalRex(ctx context.Context, ds dataset.Dataset, pos int,
	stats *dataset.FieldStats, c constraints.Constraint) (ConstraintResult, error) {

	if stats.Type != constraints.TypeString {
		return inapplicable(c.Kind, stats.Type), nil
	}
	compiled, err := CompileRex(c.Patterns)
	if err != nil {
		return fail(c.Kind, ReasonBadPattern, err.Error(), nil), nil
	}
	matches := func(v dataset.Value) bool {
		s, ok := v.(string)
		if !ok {
			return true // non-string cells are the type constraint's business
		}
		return MatchesAny(s, compiled)
	}
	if !stats.DistinctTruncated {
		for _, v := range stats.DistinctValues {
			if !matches(v) {
				return failRex(c, v), nil
			}
		}
		return pass(c.Kind), nil
	}
	offender, found, err := scanForOffender(ctx, ds, pos, matches)
	if err != nil {
		return ConstraintResult{}, err
	}
	if found {
		return failRex(c, offender), nil
	}
	return pass(c.Kind), nil
}

func failRex(c constraints.Constraint, v dataset.Value) ConstraintResult {
	return fail(c.Kind, ReasonUnmatchedValue,
		fmt.Sprintf("value %v matches no pattern", v), v)
}

// scanForOffender walks the rows of one field until ok returns false,
// skipping nulls.
func scanForOffender(ctx context.Context, ds dataset.Dataset, pos int,
	ok func(dataset.Value) bool) (dataset.Value, bool, error) {

	rows, err := ds.Rows(ctx)
	if err != nil {
		return nil, false, err
	}
	for {
		row, more := rows.Next()
		if !more {
			break
		}
		v := row.Values[pos]
		if v == nil {
			continue
		}
		if !ok(v) {
			return v, true, nil
		}
	}
	return nil, false, rows.Err()
}

func verifyGroup(ctx context.Context, ds dataset.Dataset,
	g constraints.GroupConstraint, positions map[string]int) (GroupResult, error) {

	result := GroupResult{Name: g.Name()}
	posA, okA := positions[g.Fields[0]]
	posB, okB := positions[g.Fields[1]]
	if !okA || !okB {
		result.Outcome = OutcomeFail
		result.Reason = ReasonMissingField
		result.Message = "one or both fields are not in the dataset"
		return result, nil
	}

	rows, err := ds.Rows(ctx)
	if err != nil {
		return GroupResult{}, err
	}
	for {
		row, more := rows.Next()
		if !more {
			break
		}
		a, b := row.Values[posA], row.Values[posB]
		if a == nil || b == nil {
			continue
		}
		cmp, comparable := CompareValues(a, b)
		if !comparable {
			continue
		}
		if !groupOpHolds(g.Op, cmp) {
			result.Outcome = OutcomeFail
			result.Reason = ReasonFieldComparison
			result.Message = fmt.Sprintf("record %d: %v %s %v does not hold", row.Index, a, g.Op, b)
			result.Value = row.Index
			return result, nil
		}
	}
	if err := rows.Err(); err != nil {
		return GroupResult{}, err
	}
	result.Outcome = OutcomePass
	return result, nil
}

func groupOpHolds(op constraints.GroupOp, cmp int) bool {
	switch op {
	case constraints.GroupLt:
		return cmp < 0
	case constraints.GroupLte:
		return cmp <= 0
	case constraints.GroupEq:
		return cmp == 0
	case constraints.GroupGt:
		return cmp > 0
	case constraints.GroupGte:
		return cmp >= 0
	default:
		return false
	}
}
