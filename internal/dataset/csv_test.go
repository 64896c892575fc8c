package dataset

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tdda-tools/internal/constraints"
)

func TestInferColumnType(t *testing.T) {
	cases := []struct {
		cells []string
		want  constraints.FieldType
	}{
		{[]string{"1", "2", "30"}, constraints.TypeInt},
		{[]string{"1", "2.5"}, constraints.TypeReal},
		{[]string{"true", "false", ""}, constraints.TypeBool},
		{[]string{"2021-01-01", "2021-06-30"}, constraints.TypeDate},
		{[]string{"1", "x"}, constraints.TypeString},
		{[]string{"", ""}, constraints.TypeString},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, InferColumnType(tc.cells), "cells %v", tc.cells)
	}
}

func TestParseCell(t *testing.T) {
	assert.Nil(t, ParseCell("", constraints.TypeInt))
	assert.Nil(t, ParseCell("  ", constraints.TypeString))
	assert.Equal(t, int64(42), ParseCell("42", constraints.TypeInt))
	assert.Equal(t, 2.5, ParseCell("2.5", constraints.TypeReal))
	assert.Equal(t, true, ParseCell("true", constraints.TypeBool))
	assert.Equal(t, "hello", ParseCell("hello", constraints.TypeString))

	d, ok := ParseCell("2021-03-04", constraints.TypeDate).(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), d)

	// A cell the declared type refuses degrades to its raw string.
	assert.Equal(t, "n/a", ParseCell("n/a", constraints.TypeInt))
}

func TestReadCSV(t *testing.T) {
	raw := strings.Join([]string{
		"age,name,joined",
		"20,ann,2020-01-05",
		"30,bob,2021-07-19",
		",cara,2022-03-02",
	}, "\n")

	ds, err := ReadCSV(strings.NewReader(raw), CSVOptions{})
	require.NoError(t, err)

	fields := ds.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, constraints.TypeInt, fields[0].Type)
	assert.Equal(t, constraints.TypeString, fields[1].Type)
	assert.Equal(t, constraints.TypeDate, fields[2].Type)
	assert.Equal(t, int64(3), ds.NumRecords())

	stats, err := ds.FieldStats(context.Background(), "age")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.NullCount)
	assert.Equal(t, int64(20), stats.Min)
	assert.Equal(t, int64(30), stats.Max)
}

func TestReadCSVSkipsMisalignedRows(t *testing.T) {
	raw := "a,b\n1,2\n3\n4,5\n"
	ds, err := ReadCSV(strings.NewReader(raw), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ds.NumRecords())
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	assert.Error(t, err)
}
