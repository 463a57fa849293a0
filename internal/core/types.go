package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const (
	// ImportTable is the control table holding one row per imported file.
	ImportTable = "xer_files"

	// BackRefColumn links every stored row to its import record.
	BackRefColumn = "xer_file_id"

	// maxIdentifierLen is the PostgreSQL identifier limit (NAMEDATALEN - 1).
	// Longer names are silently truncated by the server, which would break
	// the live column comparison on the next import.
	maxIdentifierLen = 63
)

// ImportRecord is the durable marker of one ingested file.
type ImportRecord struct {
	ID         int64
	FileName   string
	UploadedAt time.Time
	RunID      string
}

// TableResult summarizes what one import did to one stored table.
type TableResult struct {
	Table         string
	Created       bool     // table did not exist before this import
	AddedColumns  []string // columns added by this import, in declared order
	Inserted      int
	Skipped       int      // rows with nothing to insert or that failed to insert
	DroppedFields []string // declared fields that could not be stored
	Copied        bool     // rows were written with COPY
	Error         string   // non-empty if the table was skipped
}

// ImportResult is returned for every committed import.
type ImportResult struct {
	ImportID   int64
	RunID      string
	FileName   string
	UploadedAt time.Time
	Attempts   int
	Tables     []TableResult
	Duration   time.Duration
}

// Inserted returns the number of rows stored across all tables.
func (r *ImportResult) Inserted() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Inserted
	}
	return n
}

// Skipped returns the number of rows skipped across all tables.
func (r *ImportResult) Skipped() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Skipped
	}
	return n
}

// TableRow represents a single stored row as column -> value.
// Absent values are nil.
type TableRow map[string]interface{}

// TableData is a read-only slice of one stored table.
type TableData struct {
	Table   string
	Columns []string // column order as stored, back-reference column last
	Rows    []TableRow
}
