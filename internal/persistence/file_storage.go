package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"tdda-tools/internal/constraints"
)

// LoadConstraints reads and validates a constraints document from disk.
// Any structural problem in the file is fatal here, per the document
// error policy.
func LoadConstraints(path string) (*constraints.DatasetConstraints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read constraints file %q: %w", path, err)
	}
	doc, err := constraints.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("constraints file %q: %w", path, err)
	}
	slog.Info("Constraints document loaded", "path", path,
		"fields", len(doc.Fields), "constraints", doc.NumConstraints())
	return doc, nil
}

// SaveConstraints writes a constraints document to disk. It serialises
// into a uniquely named temporary file in the target directory and
// renames it into place, so a crash mid-write never leaves a partial
// document behind.
func SaveConstraints(path string, doc *constraints.DatasetConstraints) error {
	data, err := doc.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialise constraints document: %w", err)
	}

	tempPath := filepath.Join(filepath.Dir(path),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file %q: %w", tempPath, err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write constraints document: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync constraints document to disk: %w", err)
	}
	// Close before renaming, especially important on Windows.
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file to %q: %w", path, err)
	}
	slog.Info("Constraints document saved", "path", path, "fields", len(doc.Fields))
	return nil
}
