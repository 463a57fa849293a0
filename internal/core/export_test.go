package core

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestCSVFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TASK", "TASK.csv"},
		{"a/b", "a_b.csv"},
		{`c:\d`, "c__d.csv"},
		{"..", "_...csv"},
	}
	for _, tt := range tests {
		if got := csvFileName(tt.in); got != tt.want {
			t.Errorf("csvFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"", ""},
		{"text", "text"},
		{int64(42), "42"},
		{ts, "2026-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteTableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TASK.csv")
	data := &TableData{
		Table:   "TASK",
		Columns: []string{"task_id", "note", BackRefColumn},
		Rows: []TableRow{
			{"task_id": "1", "note": "a, \"quoted\" value", BackRefColumn: int64(3)},
			{"task_id": "2", "note": nil, BackRefColumn: int64(3)},
		},
	}

	if err := writeTableCSV(path, data, data.Columns[:2]); err != nil {
		t.Fatalf("writeTableCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"task_id", "note"},
		{"1", "a, \"quoted\" value"},
		{"2", ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("csv = %v, want %v", got, want)
	}
}

func TestWriteImportsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), csvFileName(ImportTable))
	rec := ImportRecord{
		ID:         12,
		FileName:   "plan.xer",
		UploadedAt: time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
		RunID:      "8c7e2f1a-0000-4000-8000-000000000001",
	}

	if err := writeImportsCSV(path, []ImportRecord{rec}); err != nil {
		t.Fatalf("writeImportsCSV: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "id,filename,upload_date,run_id\n12,plan.xer,2026-05-04T03:02:01Z,8c7e2f1a-0000-4000-8000-000000000001\n"
	if string(content) != want {
		t.Errorf("content =\n%s\nwant\n%s", content, want)
	}
}
