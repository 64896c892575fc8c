package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tdda-tools/internal/constraints"
)

func intColumn(t *testing.T, values ...any) *InMemDataset {
	t.Helper()
	ds := NewInMemDataset([]Field{{Name: "x", Type: constraints.TypeInt}}, 0)
	for _, v := range values {
		require.NoError(t, ds.AppendRow(v))
	}
	return ds
}

func TestFieldStatsNumeric(t *testing.T) {
	ds := intColumn(t, int64(20), int64(30), nil, int64(40), int64(30))
	stats, err := ds.FieldStats(context.Background(), "x")
	require.NoError(t, err)

	assert.Equal(t, constraints.TypeInt, stats.Type)
	assert.Equal(t, int64(20), stats.Min)
	assert.Equal(t, int64(40), stats.Max)
	assert.Equal(t, int64(1), stats.NullCount)
	assert.Equal(t, int64(4), stats.NonNullCount)
	assert.Equal(t, int64(5), stats.TotalCount)
	assert.Equal(t, int64(3), stats.DistinctCount)
	assert.Equal(t, []Value{int64(20), int64(30), int64(40)}, stats.DistinctValues)
	assert.False(t, stats.DistinctTruncated)
}

func TestFieldStatsStrings(t *testing.T) {
	ds := NewInMemDataset([]Field{{Name: "s", Type: constraints.TypeString}}, 0)
	for _, v := range []any{"alpha", "be", nil, "gamma", "be"} {
		require.NoError(t, ds.AppendRow(v))
	}
	stats, err := ds.FieldStats(context.Background(), "s")
	require.NoError(t, err)

	assert.Equal(t, "alpha", stats.Min)
	assert.Equal(t, "gamma", stats.Max)
	assert.True(t, stats.HasLengths)
	assert.Equal(t, 2, stats.MinLength)
	assert.Equal(t, 5, stats.MaxLength)
	assert.Equal(t, []Value{"alpha", "be", "gamma"}, stats.DistinctValues)
}

func TestFieldStatsDistinctCap(t *testing.T) {
	ds := NewInMemDataset([]Field{{Name: "x", Type: constraints.TypeInt}}, 3)
	for i := range 10 {
		require.NoError(t, ds.AppendRow(int64(i)))
	}
	stats, err := ds.FieldStats(context.Background(), "x")
	require.NoError(t, err)

	assert.True(t, stats.DistinctTruncated)
	assert.Len(t, stats.DistinctValues, 3)
	// The full distinct count is still exact past the cap.
	assert.Equal(t, int64(10), stats.DistinctCount)
}

func TestFieldStatsAllNull(t *testing.T) {
	ds := intColumn(t, nil, nil, nil)
	stats, err := ds.FieldStats(context.Background(), "x")
	require.NoError(t, err)

	assert.Nil(t, stats.Min)
	assert.Nil(t, stats.Max)
	assert.Equal(t, int64(3), stats.NullCount)
	assert.Equal(t, int64(0), stats.NonNullCount)
	assert.Equal(t, int64(0), stats.DistinctCount)
}

func TestFieldStatsDates(t *testing.T) {
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	ds := NewInMemDataset([]Field{{Name: "d", Type: constraints.TypeDate}}, 0)
	require.NoError(t, ds.AppendRow(late))
	require.NoError(t, ds.AppendRow(early))

	stats, err := ds.FieldStats(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, early, stats.Min)
	assert.Equal(t, late, stats.Max)
}

func TestFieldStatsDeterministic(t *testing.T) {
	ds := intColumn(t, int64(3), int64(1), int64(2), int64(1))
	first, err := ds.FieldStats(context.Background(), "x")
	require.NoError(t, err)
	second, err := ds.FieldStats(context.Background(), "x")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestAppendRowCoercion(t *testing.T) {
	ds := NewInMemDataset([]Field{
		{Name: "r", Type: constraints.TypeReal},
		{Name: "i", Type: constraints.TypeInt},
	}, 0)
	require.NoError(t, ds.AppendRow(int64(2), float64(7)))

	rows, err := ds.Rows(context.Background())
	require.NoError(t, err)
	row, ok := rows.Next()
	require.True(t, ok)
	assert.Equal(t, float64(2), row.Values[0])
	assert.Equal(t, int64(7), row.Values[1])
}

func TestAppendRowArityMismatch(t *testing.T) {
	ds := intColumn(t)
	assert.Error(t, ds.AppendRow(int64(1), int64(2)))
}

func TestRowsPreserveOrder(t *testing.T) {
	ds := intColumn(t, int64(5), nil, int64(7))
	rows, err := ds.Rows(context.Background())
	require.NoError(t, err)

	var got []Value
	var indexes []int64
	for {
		row, ok := rows.Next()
		if !ok {
			break
		}
		got = append(got, row.Values[0])
		indexes = append(indexes, row.Index)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []Value{int64(5), nil, int64(7)}, got)
	assert.Equal(t, []int64{0, 1, 2}, indexes)
}

func TestRowsRespectCancellation(t *testing.T) {
	ds := intColumn(t, int64(1), int64(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err := ds.Rows(ctx)
	require.NoError(t, err)
	_, ok := rows.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, rows.Err(), context.Canceled)
}

func TestUnknownField(t *testing.T) {
	ds := intColumn(t, int64(1))
	_, err := ds.FieldStats(context.Background(), "nope")
	assert.Error(t, err)
}
