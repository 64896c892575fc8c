package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/btree"

	"tdda-tools/internal/constraints"
)

// DefaultDistinctCap is the default hard cap K on distinct-value
// samples.
const DefaultDistinctCap = 20

const btreeDegree = 32 // Degree of the B-Trees backing field indexes.

// numericKey is the B-Tree item for orderable non-string values. Key is
// the ordering scalar; Val keeps the original value so extrema come
// back in their native type.
type numericKey struct {
	Key   float64
	Val   Value
	Count int64
}

// stringKey is the B-Tree item for string values.
type stringKey struct {
	Value string
	Count int64
}

func numericLess(a, b numericKey) bool {
	return a.Key < b.Key
}

func stringLess(a, b stringKey) bool {
	return a.Value < b.Value
}

// fieldIndex accumulates one column's statistics as values stream in.
// It keeps two B-Trees, one per value family, mirroring the distinct
// value set in sorted order; first-seen order is tracked separately up
// to the cap.
type fieldIndex struct {
	numericTree *btree.BTreeG[numericKey]
	stringTree  *btree.BTreeG[stringKey]

	firstSeen []Value
	truncated bool

	nulls    int64
	nonNulls int64

	minLen, maxLen int
	hasLen         bool
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{
		numericTree: btree.NewG[numericKey](btreeDegree, numericLess),
		stringTree:  btree.NewG[stringKey](btreeDegree, stringLess),
	}
}

// orderingKey maps a non-string value onto the numeric ordering scalar.
func orderingKey(v Value) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
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

// add folds one cell into the index. limit bounds the first-seen
// distinct sample; counting continues past it.
func (ix *fieldIndex) add(v Value, limit int) {
	if v == nil {
		ix.nulls++
		return
	}
	ix.nonNulls++

	if n, ok := Length(v); ok {
		if !ix.hasLen || n < ix.minLen {
			ix.minLen = n
		}
		if !ix.hasLen || n > ix.maxLen {
			ix.maxLen = n
		}
		ix.hasLen = true
	}

	fresh := false
	if s, ok := v.(string); ok {
		item, found := ix.stringTree.Get(stringKey{Value: s})
		if !found {
			item = stringKey{Value: s}
			fresh = true
		}
		item.Count++
		ix.stringTree.ReplaceOrInsert(item)
	} else if key, ok := orderingKey(v); ok {
		item, found := ix.numericTree.Get(numericKey{Key: key})
		if !found {
			item = numericKey{Key: key, Val: v}
			fresh = true
		}
		item.Count++
		ix.numericTree.ReplaceOrInsert(item)
	} else {
		// Unorderable values only count; they never index.
		return
	}

	if fresh {
		if len(ix.firstSeen) < limit {
			ix.firstSeen = append(ix.firstSeen, v)
		} else {
			ix.truncated = true
		}
	}
}

func (ix *fieldIndex) distinctCount() int64 {
	return int64(ix.numericTree.Len()) + int64(ix.stringTree.Len())
}

func (ix *fieldIndex) extrema() (Value, Value) {
	var min, max Value
	if item, ok := ix.numericTree.Min(); ok {
		min = item.Val
	}
	if item, ok := ix.numericTree.Max(); ok {
		max = item.Val
	}
	if item, ok := ix.stringTree.Min(); ok {
		if min == nil {
			min = item.Value
		}
	}
	if item, ok := ix.stringTree.Max(); ok {
		if max == nil {
			max = item.Value
		}
	}
	return min, max
}

// InMemDataset holds a fully materialised table: a fixed field schema
// and column-major cell storage. It implements Dataset; field
// statistics are computed lazily, once per field, and cached.
type InMemDataset struct {
	fields  []Field
	columns [][]Value
	capK    int

	mu    sync.Mutex
	stats map[string]*FieldStats
}

// NewInMemDataset creates an empty dataset with the given schema.
// capK <= 0 selects DefaultDistinctCap.
func NewInMemDataset(fields []Field, capK int) *InMemDataset {
	if capK <= 0 {
		capK = DefaultDistinctCap
	}
	return &InMemDataset{
		fields:  fields,
		columns: make([][]Value, len(fields)),
		capK:    capK,
		stats:   make(map[string]*FieldStats),
	}
}

// AppendRow adds one record. Values must align with the schema; int and
// real cells are coerced to the column's declared numeric type.
func (d *InMemDataset) AppendRow(values ...Value) error {
	if len(values) != len(d.fields) {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), len(d.fields))
	}
	for i, v := range values {
		coerced, err := coerce(v, d.fields[i].Type)
		if err != nil {
			return fmt.Errorf("field %q: %w", d.fields[i].Name, err)
		}
		d.columns[i] = append(d.columns[i], coerced)
	}
	// Any cached stats are stale now.
	d.mu.Lock()
	clear(d.stats)
	d.mu.Unlock()
	return nil
}

// coerce aligns a cell with the column's declared type where the
// conversion is lossless; anything else is kept as-is and surfaces
// later as a type failure.
func coerce(v Value, t constraints.FieldType) (Value, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case constraints.TypeReal:
		if i, ok := v.(int64); ok {
			return float64(i), nil
		}
	case constraints.TypeInt:
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f), nil
		}
	}
	if _, ok := TypeOfValue(v); !ok {
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
	return v, nil
}

// Fields returns the schema in declaration order.
func (d *InMemDataset) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// NumRecords returns the row count.
func (d *InMemDataset) NumRecords() int64 {
	if len(d.columns) == 0 {
		return 0
	}
	return int64(len(d.columns[0]))
}

func (d *InMemDataset) fieldPosition(name string) (int, bool) {
	for i := range d.fields {
		if d.fields[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// FieldStats computes (or returns cached) column reductions for one
// field.
func (d *InMemDataset) FieldStats(ctx context.Context, field string) (*FieldStats, error) {
	d.mu.Lock()
	cached, ok := d.stats[field]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	pos, ok := d.fieldPosition(field)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix := newFieldIndex()
	for _, v := range d.columns[pos] {
		ix.add(v, d.capK)
	}
	min, max := ix.extrema()
	stats := &FieldStats{
		Name:              field,
		Type:              d.fields[pos].Type,
		Min:               min,
		Max:               max,
		NullCount:         ix.nulls,
		NonNullCount:      ix.nonNulls,
		TotalCount:        ix.nulls + ix.nonNulls,
		DistinctCount:     ix.distinctCount(),
		DistinctValues:    ix.firstSeen,
		DistinctTruncated: ix.truncated,
		MinLength:         ix.minLen,
		MaxLength:         ix.maxLen,
		HasLengths:        ix.hasLen,
	}

	d.mu.Lock()
	d.stats[field] = stats
	d.mu.Unlock()
	slog.Debug("Field statistics computed",
		"field", field, "distinct", stats.DistinctCount, "nulls", stats.NullCount)
	return stats, nil
}

// Rows returns an in-order iterator over the records.
func (d *InMemDataset) Rows(ctx context.Context) (RowIterator, error) {
	return &inmemRowIterator{d: d, ctx: ctx, total: d.NumRecords()}, nil
}

type inmemRowIterator struct {
	d     *InMemDataset
	ctx   context.Context
	next  int64
	total int64
	err   error
}

func (it *inmemRowIterator) Next() (Row, bool) {
	if it.err != nil || it.next >= it.total {
		return Row{}, false
	}
	if it.next%1024 == 0 {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return Row{}, false
		}
	}
	i := it.next
	it.next++
	values := make([]Value, len(it.d.columns))
	for c := range it.d.columns {
		values[c] = it.d.columns[c][i]
	}
	return Row{Index: i, Values: values}, true
}

func (it *inmemRowIterator) Err() error {
	return it.err
}
