package discover

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/dataset"
)

func singleColumn(t *testing.T, name string, ft constraints.FieldType, values ...any) *dataset.InMemDataset {
	t.Helper()
	ds := dataset.NewInMemDataset([]dataset.Field{{Name: name, Type: ft}}, 0)
	for _, v := range values {
		require.NoError(t, ds.AppendRow(v))
	}
	return ds
}

func discoverOne(t *testing.T, ds dataset.StatsProvider, opts Options) *constraints.FieldConstraints {
	t.Helper()
	doc, err := Discover(context.Background(), ds, opts)
	require.NoError(t, err)
	require.Len(t, doc.Fields, 1)
	return doc.Fields[0].Constraints
}

func TestDiscoverNumericField(t *testing.T) {
	ds := singleColumn(t, "age", constraints.TypeInt, int64(20), int64(30), int64(40))
	fc := discoverOne(t, ds, Options{})

	assert.Equal(t, constraints.TypeInt, fc.Type)
	require.NotNil(t, fc.Min)
	assert.Equal(t, int64(20), fc.Min.Value)
	require.NotNil(t, fc.Max)
	assert.Equal(t, int64(40), fc.Max.Value)
	assert.Equal(t, constraints.SignPositive, fc.Sign)
	require.NotNil(t, fc.MaxNulls)
	assert.Equal(t, int64(0), *fc.MaxNulls)
	require.NotNil(t, fc.NoDuplicates)
	assert.True(t, *fc.NoDuplicates)
	assert.Equal(t, []any{int64(20), int64(30), int64(40)}, fc.AllowedValues)
}

func TestDiscoverSigns(t *testing.T) {
	cases := []struct {
		values []any
		want   constraints.Sign
	}{
		{[]any{int64(1), int64(5)}, constraints.SignPositive},
		{[]any{int64(0), int64(5)}, constraints.SignNonNegative},
		{[]any{int64(0), int64(0)}, constraints.SignZero},
		{[]any{int64(-3), int64(0)}, constraints.SignNonPositive},
		{[]any{int64(-3), int64(-1)}, constraints.SignNegative},
		{[]any{int64(-3), int64(3)}, constraints.Sign("")},
	}
	for _, tc := range cases {
		ds := singleColumn(t, "x", constraints.TypeInt, tc.values...)
		fc := discoverOne(t, ds, Options{})
		assert.Equal(t, tc.want, fc.Sign, "values %v", tc.values)
	}
}

func TestDiscoverDuplicatesSuppressNoDuplicates(t *testing.T) {
	ds := singleColumn(t, "x", constraints.TypeInt, int64(1), int64(1), int64(2))
	fc := discoverOne(t, ds, Options{})

	assert.Nil(t, fc.NoDuplicates)
	assert.Equal(t, []any{int64(1), int64(2)}, fc.AllowedValues)
}

func TestDiscoverMaxNullsSuppressedWhenMixed(t *testing.T) {
	ds := singleColumn(t, "x", constraints.TypeInt, int64(1), nil, int64(2))
	fc := discoverOne(t, ds, Options{})
	assert.Nil(t, fc.MaxNulls)
}

func TestDiscoverAllNullField(t *testing.T) {
	ds := singleColumn(t, "x", constraints.TypeString, nil, nil, nil)
	fc := discoverOne(t, ds, Options{})

	assert.Equal(t, constraints.TypeString, fc.Type)
	require.NotNil(t, fc.MaxNulls)
	assert.Equal(t, int64(3), *fc.MaxNulls)
	assert.Nil(t, fc.Min)
	assert.Nil(t, fc.Max)
	assert.Nil(t, fc.MinLength)
	assert.Nil(t, fc.AllowedValues)
}

func TestDiscoverConstantField(t *testing.T) {
	ds := singleColumn(t, "x", constraints.TypeInt, int64(7), int64(7))
	fc := discoverOne(t, ds, Options{})

	assert.Equal(t, int64(7), fc.Min.Value)
	assert.Equal(t, int64(7), fc.Max.Value)
	assert.Equal(t, []any{int64(7)}, fc.AllowedValues)
	assert.Nil(t, fc.NoDuplicates)
}

func TestDiscoverStringField(t *testing.T) {
	ds := singleColumn(t, "code", constraints.TypeString, "AB-01", "AB-02", "AB-17")
	fc := discoverOne(t, ds, Options{DiscoverRex: true})

	assert.Equal(t, constraints.TypeString, fc.Type)
	require.NotNil(t, fc.MinLength)
	assert.Equal(t, 5, *fc.MinLength)
	require.NotNil(t, fc.MaxLength)
	assert.Equal(t, 5, *fc.MaxLength)
	assert.Nil(t, fc.Min)
	assert.Nil(t, fc.Max)
	assert.Equal(t, []string{`^[A-Z]{2}-\d{2}$`}, fc.Rex)
}

func TestDiscoverRexDisabled(t *testing.T) {
	ds := singleColumn(t, "code", constraints.TypeString, "AB-01", "AB-02")
	fc := discoverOne(t, ds, Options{DiscoverRex: false})
	assert.Nil(t, fc.Rex)
}

func TestDiscoverAllowedValuesSuppressedPastCap(t *testing.T) {
	values := make([]any, 0, 30)
	for i := range 30 {
		values = append(values, int64(i))
	}
	ds := dataset.NewInMemDataset([]dataset.Field{{Name: "x", Type: constraints.TypeInt}}, 5)
	for _, v := range values {
		require.NoError(t, ds.AppendRow(v))
	}
	fc := discoverOne(t, ds, Options{MaxDistinct: 5})
	assert.Nil(t, fc.AllowedValues)
	assert.Nil(t, fc.Rex)
}

func TestDiscoverDateField(t *testing.T) {
	ds := dataset.NewInMemDataset([]dataset.Field{{Name: "d", Type: constraints.TypeDate}}, 0)
	for _, cell := range []string{"2021-06-30", "2020-01-01", "2022-12-25"} {
		require.NoError(t, ds.AppendRow(dataset.ParseCell(cell, constraints.TypeDate)))
	}
	fc := discoverOne(t, ds, Options{})

	require.NotNil(t, fc.Min)
	assert.Equal(t, "2020-01-01", fc.Min.Value)
	require.NotNil(t, fc.Max)
	assert.Equal(t, "2022-12-25", fc.Max.Value)
	assert.Equal(t, constraints.Sign(""), fc.Sign)
}

func TestDiscoverPreservesFieldOrder(t *testing.T) {
	ds := dataset.NewInMemDataset([]dataset.Field{
		{Name: "b", Type: constraints.TypeInt},
		{Name: "a", Type: constraints.TypeInt},
		{Name: "c", Type: constraints.TypeInt},
	}, 0)
	require.NoError(t, ds.AppendRow(int64(1), int64(2), int64(3)))

	doc, err := Discover(context.Background(), ds, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, doc.FieldNames())
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ds := singleColumn(t, "x", constraints.TypeInt, int64(1))
	_, err := Discover(ctx, ds, Options{})
	assert.Error(t, err)
}

type staticGroups struct{}

func (staticGroups) DiscoverGroups(ctx context.Context, ds dataset.StatsProvider) ([]constraints.GroupConstraint, error) {
	return []constraints.GroupConstraint{{Op: constraints.GroupLte, Fields: [2]string{"a", "b"}}}, nil
}

func TestDiscoverGroupHook(t *testing.T) {
	ds := dataset.NewInMemDataset([]dataset.Field{
		{Name: "a", Type: constraints.TypeInt},
		{Name: "b", Type: constraints.TypeInt},
	}, 0)
	require.NoError(t, ds.AppendRow(int64(1), int64(2)))

	doc, err := Discover(context.Background(), ds, Options{Groups: staticGroups{}})
	require.NoError(t, err)
	require.Len(t, doc.Groups, 1)
	assert.Equal(t, "a_lte_b", doc.Groups[0].Name())
}
