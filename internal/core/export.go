package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportImport writes the import record and one CSV file per stored table
// holding the rows of one import. Tables without rows for the import are
// skipped. The back-reference column is left out. Returns the paths written.
func (s *Service) ExportImport(ctx context.Context, importID int64, dir string) ([]string, error) {
	rec, err := s.GetImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, csvFileName(ImportTable))
	if err := writeImportsCSV(path, []ImportRecord{rec}); err != nil {
		return nil, err
	}
	written := []string{path}

	tables, err := s.StoredTables(ctx)
	if err != nil {
		return written, err
	}

	for _, table := range tables {
		data, err := s.RowsForImport(ctx, table, importID)
		if err != nil {
			return written, err
		}
		if len(data.Rows) == 0 {
			continue
		}

		path := filepath.Join(dir, csvFileName(table))
		if err := writeTableCSV(path, data, data.Columns[:len(data.Columns)-1]); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// ExportAll writes every stored table, back-reference column included, plus
// the import records, as CSV files in dir. Returns the paths written.
func (s *Service) ExportAll(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	imports, err := s.ListImports(ctx)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, csvFileName(ImportTable))
	if err := writeImportsCSV(path, imports); err != nil {
		return nil, err
	}
	written := []string{path}

	tables, err := s.StoredTables(ctx)
	if err != nil {
		return written, err
	}
	for _, table := range tables {
		data, err := s.AllRows(ctx, table)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, csvFileName(table))
		if err := writeTableCSV(path, data, data.Columns); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeTableCSV(path string, data *TableData, columns []string) error {
	records := make([][]string, 0, len(data.Rows)+1)
	records = append(records, columns)
	for _, row := range data.Rows {
		rec := make([]string, len(columns))
		for i, c := range columns {
			rec[i] = formatValue(row[c])
		}
		records = append(records, rec)
	}
	return writeCSV(path, records)
}

func writeImportsCSV(path string, imports []ImportRecord) error {
	records := [][]string{{"id", "filename", "upload_date", "run_id"}}
	for _, rec := range imports {
		records = append(records, []string{
			fmt.Sprint(rec.ID),
			rec.FileName,
			rec.UploadedAt.UTC().Format(time.RFC3339),
			rec.RunID,
		})
	}
	return writeCSV(path, records)
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// formatValue renders a stored value for CSV. NULL becomes an empty cell.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// csvFileName turns a table name into a safe file name.
func csvFileName(table string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r < 0x20 {
			return '_'
		}
		return r
	}, table)
	if name == "" || name == "." || name == ".." {
		name = "_" + name
	}
	return name + ".csv"
}
