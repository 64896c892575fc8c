package persistence

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/detect"
)

// WriteDetectionOutput writes a detection result as headed CSV. When
// the result retains no rows, any previous artifact at the path is
// removed instead, so a stale output can never be mistaken for a fresh
// one.
func WriteDetectionOutput(path string, result *detect.Result) error {
	if len(result.Rows) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale detection output %q: %w", path, err)
		}
		slog.Info("No records retained, detection output removed", "path", path)
		return nil
	}

	tempPath := filepath.Join(filepath.Dir(path),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file %q: %w", tempPath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(result.Columns); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write detection header: %w", err)
	}
	for i, row := range result.Rows {
		record := make([]string, len(row.Values))
		for c, v := range row.Values {
			record[c] = FormatCell(v)
		}
		if err := writer.Write(record); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("failed to write detection record %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to flush detection output: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync detection output to disk: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file to %q: %w", path, err)
	}
	slog.Info("Detection output written", "path", path, "rows", len(result.Rows))
	return nil
}

// FormatCell renders one output value as a CSV cell. Nulls become empty
// cells.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	case time.Time:
		return constraints.FormatDate(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
