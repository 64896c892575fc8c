package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CSVOptions control flat-file loading.
type CSVOptions struct {
	Delimiter   rune // 0 means ','
	DistinctCap int  // 0 means DefaultDistinctCap
}

// LoadCSV reads a headed CSV file into an in-memory dataset, inferring
// one logical type per column from the full set of cells.
func LoadCSV(path string, opts CSVOptions) (*InMemDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file %q: %w", path, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset file %q: %w", path, err)
	}
	slog.Info("CSV dataset loaded", "path", path, "fields", len(ds.Fields()), "records", ds.NumRecords())
	return ds, nil
}

// ReadCSV parses headed CSV content from a reader.
func ReadCSV(r io.Reader, opts CSVOptions) (*InMemDataset, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(records)+1, err)
		}
		if len(record) != len(header) {
			// Best effort: skip misaligned rows rather than abort.
			slog.Warn("Skipping misaligned CSV record", "record", len(records)+1,
				"cells", len(record), "fields", len(header))
			continue
		}
		records = append(records, record)
	}

	fields := make([]Field, len(header))
	for col, name := range header {
		cells := make([]string, len(records))
		for i, record := range records {
			cells[i] = record[col]
		}
		fields[col] = Field{Name: name, Type: InferColumnType(cells)}
	}

	ds := NewInMemDataset(fields, opts.DistinctCap)
	for _, record := range records {
		values := make([]Value, len(fields))
		for col, cell := range record {
			values[col] = ParseCell(cell, fields[col].Type)
		}
		if err := ds.AppendRow(values...); err != nil {
			return nil, err
		}
	}
	return ds, nil
}
