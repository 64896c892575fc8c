package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/detect"
)

func TestSaveAndLoadConstraints(t *testing.T) {
	doc, err := constraints.Parse([]byte(`{
        "fields": {"age": {"type": "int", "min": 20, "max": 40}}
    }`))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "age.tdda")
	require.NoError(t, SaveConstraints(path, doc))

	loaded, err := LoadConstraints(path)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadConstraintsRejectsBadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tdda")
	require.NoError(t, os.WriteFile(path, []byte(`{"fields": {"x": {"min": 9, "max": 1}}}`), 0o644))
	_, err := LoadConstraints(path)
	assert.Error(t, err)
}

func TestLoadConstraintsMissingFile(t *testing.T) {
	_, err := LoadConstraints(filepath.Join(t.TempDir(), "nope.tdda"))
	assert.Error(t, err)
}

func TestWriteDetectionOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.csv")
	result := &detect.Result{
		Columns: []string{"index", "age", "n_failures"},
		Rows: []detect.Row{
			{Values: []any{int64(1), int64(50), int64(1)}},
			{Values: []any{int64(3), nil, int64(2)}},
		},
	}
	require.NoError(t, WriteDetectionOutput(path, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index,age,n_failures\n1,50,1\n3,,2\n", string(data))
}

func TestWriteDetectionOutputRemovesStaleArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, WriteDetectionOutput(path, &detect.Result{Columns: []string{"n_failures"}}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing an artifact that never existed is fine too.
	require.NoError(t, WriteDetectionOutput(path, &detect.Result{Columns: []string{"n_failures"}}))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", FormatCell(nil))
	assert.Equal(t, "true", FormatCell(true))
	assert.Equal(t, "42", FormatCell(int64(42)))
	assert.Equal(t, "2.5", FormatCell(2.5))
	assert.Equal(t, "abc", FormatCell("abc"))
}
