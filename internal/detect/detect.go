// Package detect evaluates a constraints document row by row, marking
// each record with the number of constraints it violates.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/dataset"
	"tdda-tools/internal/verify"
)

// defaultBatchSize is how many rows are processed between cancellation
// checks.
const defaultBatchSize = 1000

// Policy controls detection output.
type Policy struct {
	// WriteAll retains passing records in the output as well.
	WriteAll bool
	// PerConstraint adds one boolean column per (field, constraint),
	// true meaning pass.
	PerConstraint bool
	// OutputFields selects which dataset fields to carry into the
	// output; nil means all of them.
	OutputFields []string
	// IncludeIndex prepends the zero-based input record number.
	IncludeIndex bool

	Epsilon      float64
	TypeChecking verify.TypeChecking
	BatchSize    int
}

func (p Policy) batchSize() int {
	if p.BatchSize <= 0 {
		return defaultBatchSize
	}
	return p.BatchSize
}

// Row is one output record.
type Row struct {
	Values []any
}

// Result is the detection output: a logical table whose rows preserve
// input order. NFailures for each retained row lives in the column
// named "n_failures".
type Result struct {
	Columns           []string
	Rows              []Row
	NumRecords        int64
	NumFailingRecords int64
}

// check is one row-evaluable (field, constraint) pair with everything
// precomputed that its predicate needs.
type check struct {
	field    string
	pos      int
	c        constraints.Constraint
	column   string
	declared constraints.FieldType

	compiled        []*regexp.Regexp
	nullsOverBudget bool
	counts          map[uint64]int64
}

// groupCheck is one row-evaluable two-field constraint.
type groupCheck struct {
	g          constraints.GroupConstraint
	posA, posB int
	column     string
}

// Detect runs row-wise evaluation of the document over the dataset.
// Constraints on fields absent from the dataset are skipped here; the
// verifier is where schema mismatches surface.
func Detect(ctx context.Context, ds dataset.Dataset, doc *constraints.DatasetConstraints, pol Policy) (*Result, error) {
	positions := make(map[string]int)
	fields := ds.Fields()
	for i, f := range fields {
		positions[f.Name] = i
	}

	var checks []*check
	needCounts := false
	for _, fe := range doc.Fields {
		pos, ok := positions[fe.Name]
		if !ok {
			slog.Warn("Skipping constraints on missing field", "field", fe.Name)
			continue
		}
		stats, err := ds.FieldStats(ctx, fe.Name)
		if err != nil {
			return nil, fmt.Errorf("statistics for field %q: %w", fe.Name, err)
		}
		for _, c := range fe.Constraints.List() {
			ck := &check{
				field:    fe.Name,
				pos:      pos,
				c:        c,
				column:   fmt.Sprintf("%s_%s_ok", fe.Name, c.Kind),
				declared: stats.Type,
			}
			switch c.Kind {
			case constraints.KindRex:
				compiled, err := verify.CompileRex(c.Patterns)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", fe.Name, err)
				}
				ck.compiled = compiled
			case constraints.KindMaxNulls:
				ck.nullsOverBudget = stats.NullCount > c.N
			case constraints.KindNoDuplicates:
				if c.Flag {
					ck.counts = make(map[uint64]int64)
					needCounts = true
				}
			}
			checks = append(checks, ck)
		}
	}

	var groupChecks []*groupCheck
	for _, g := range doc.Groups {
		posA, okA := positions[g.Fields[0]]
		posB, okB := positions[g.Fields[1]]
		if !okA || !okB {
			slog.Warn("Skipping group constraint on missing field", "group", g.Name())
			continue
		}
		groupChecks = append(groupChecks, &groupCheck{
			g: g, posA: posA, posB: posB, column: g.Name() + "_ok",
		})
	}

	// Duplicate marking needs the full occurrence census before any row
	// can be judged, so no-duplicates constraints force one extra pass.
	if needCounts {
		if err := countOccurrences(ctx, ds, checks, pol.batchSize()); err != nil {
			return nil, err
		}
	}

	outputPositions, outputNames, err := selectOutputFields(fields, positions, pol.OutputFields)
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: buildColumns(outputNames, checks, groupChecks, pol)}

	rows, err := ds.Rows(ctx)
	if err != nil {
		return nil, err
	}
	batch := pol.batchSize()
	processed := 0
	for {
		if processed%batch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, more := rows.Next()
		if !more {
			break
		}
		processed++
		result.NumRecords++

		flags := make([]bool, 0, len(checks)+len(groupChecks))
		failures := int64(0)
		for _, ck := range checks {
			ok := ck.rowOK(row.Values[ck.pos], pol)
			if !ok {
				failures++
			}
			flags = append(flags, ok)
		}
		for _, gc := range groupChecks {
			ok := gc.rowOK(row.Values[gc.posA], row.Values[gc.posB])
			if !ok {
				failures++
			}
			flags = append(flags, ok)
		}

		if failures > 0 {
			result.NumFailingRecords++
		} else if !pol.WriteAll {
			continue
		}

		out := make([]any, 0, len(result.Columns))
		if pol.IncludeIndex {
			out = append(out, row.Index)
		}
		for _, pos := range outputPositions {
			out = append(out, row.Values[pos])
		}
		if pol.PerConstraint {
			for _, f := range flags {
				out = append(out, f)
			}
		}
		out = append(out, failures)
		result.Rows = append(result.Rows, Row{Values: out})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slog.Info("Detection complete", "records", result.NumRecords,
		"failing", result.NumFailingRecords, "retained", len(result.Rows))
	return result, nil
}

func selectOutputFields(fields []dataset.Field, positions map[string]int, names []string) ([]int, []string, error) {
	if names == nil {
		out := make([]int, len(fields))
		outNames := make([]string, len(fields))
		for i, f := range fields {
			out[i] = i
			outNames[i] = f.Name
		}
		return out, outNames, nil
	}
	out := make([]int, 0, len(names))
	for _, name := range names {
		pos, ok := positions[name]
		if !ok {
			return nil, nil, fmt.Errorf("output field %q is not in the dataset", name)
		}
		out = append(out, pos)
	}
	return out, names, nil
}

func buildColumns(outputNames []string, checks []*check, groupChecks []*groupCheck, pol Policy) []string {
	columns := make([]string, 0, len(outputNames)+len(checks)+2)
	if pol.IncludeIndex {
		columns = append(columns, "index")
	}
	columns = append(columns, outputNames...)
	if pol.PerConstraint {
		for _, ck := range checks {
			columns = append(columns, ck.column)
		}
		for _, gc := range groupChecks {
			columns = append(columns, gc.column)
		}
	}
	return append(columns, "n_failures")
}

// countOccurrences makes the census pass for no-duplicates checks,
// hashing each value once per column.
func countOccurrences(ctx context.Context, ds dataset.Dataset, checks []*check, batch int) error {
	counting := make([]*check, 0, 1)
	for _, ck := range checks {
		if ck.counts != nil {
			counting = append(counting, ck)
		}
	}
	rows, err := ds.Rows(ctx)
	if err != nil {
		return err
	}
	processed := 0
	for {
		if processed%batch == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, more := rows.Next()
		if !more {
			break
		}
		processed++
		for _, ck := range counting {
			if v := row.Values[ck.pos]; v != nil {
				ck.counts[hashValue(v)]++
			}
		}
	}
	return rows.Err()
}

// hashValue maps a cell onto a 64-bit occurrence key. A type tag keeps
// value families from colliding across representations.
func hashValue(v dataset.Value) uint64 {
	var repr string
	switch val := v.(type) {
	case bool:
		if val {
			repr = "b1"
		} else {
			repr = "b0"
		}
	case int64:
		repr = "n" + strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			repr = "n" + strconv.FormatInt(int64(val), 10)
		} else {
			repr = "n" + strconv.FormatFloat(val, 'g', -1, 64)
		}
	case string:
		repr = "s" + val
	case time.Time:
		repr = "d" + strconv.FormatInt(val.UnixNano(), 10)
	default:
		repr = fmt.Sprintf("?%v", val)
	}
	return xxh3.HashString(repr)
}

// rowOK evaluates one constraint against one cell. Nulls fail only the
// max-nulls budget; every other kind passes them through.
func (ck *check) rowOK(v dataset.Value, pol Policy) bool {
	if v == nil {
		if ck.c.Kind == constraints.KindMaxNulls {
			return !ck.nullsOverBudget
		}
		return true
	}
	switch ck.c.Kind {
	case constraints.KindType:
		observed, ok := dataset.TypeOfValue(v)
		if !ok {
			return false
		}
		tc := pol.TypeChecking
		if tc == "" {
			tc = verify.TypeCheckingSloppy
		}
		return verify.TypesCompatible(ck.c.Type, observed, tc)
	case constraints.KindMin:
		ok, comparable := verify.BoundSatisfied(v, ck.c.Bound, true, ck.declared, pol.Epsilon)
		return !comparable || ok
	case constraints.KindMax:
		ok, comparable := verify.BoundSatisfied(v, ck.c.Bound, false, ck.declared, pol.Epsilon)
		return !comparable || ok
	case constraints.KindSign:
		ok, evaluable := verify.SignSatisfied(v, ck.c.Sign)
		return !evaluable || ok
	case constraints.KindMinLength:
		n, ok := dataset.Length(v)
		return !ok || int64(n) >= ck.c.N
	case constraints.KindMaxLength:
		n, ok := dataset.Length(v)
		return !ok || int64(n) <= ck.c.N
	case constraints.KindMaxNulls:
		return true
	case constraints.KindNoDuplicates:
		if !ck.c.Flag {
			return true
		}
		return ck.counts[hashValue(v)] == 1
	case constraints.KindAllowedValues:
		return verify.ValueInSet(v, ck.c.Values)
	case constraints.KindRex:
		s, ok := v.(string)
		if !ok {
			return true
		}
		return verify.MatchesAny(s, ck.compiled)
	default:
		return true
	}
}

// rowOK for a two-field comparison: rows where either side is null or
// the values do not order pass.
func (gc *groupCheck) rowOK(a, b dataset.Value) bool {
	if a == nil || b == nil {
		return true
	}
	cmp, comparable := verify.CompareValues(a, b)
	if !comparable {
		return true
	}
	switch gc.g.Op {
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
		return true
	}
}
