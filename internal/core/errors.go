package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrStoreBusy is returned when the store stayed locked through every retry.
	ErrStoreBusy = errors.New("store busy: lock not acquired")

	// ErrFileTooLarge is returned for files above the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNotFound is returned when an import record does not exist.
	ErrNotFound = errors.New("import not found")

	// ErrUnknownTable is returned when a stored table does not exist.
	ErrUnknownTable = errors.New("unknown table")

	// ErrNotExportFile is returned for paths without the export file extension.
	ErrNotExportFile = errors.New("not an export file")
)

// ImportStage names the step of an import that failed.
type ImportStage string

const (
	StageAcquire ImportStage = "acquire"
	StageRead    ImportStage = "read"
	StageParse   ImportStage = "parse"
	StageCommit  ImportStage = "transaction"
)

// ImportFailure is the single failure signal for an import that did not commit.
// Nothing from a failed import is persisted.
type ImportFailure struct {
	Path     string
	Stage    ImportStage
	Attempts int
	Err      error
}

func (e *ImportFailure) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("import %s failed at %s after %d attempts: %v", e.Path, e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("import %s failed at %s: %v", e.Path, e.Stage, e.Err)
}

func (e *ImportFailure) Unwrap() error {
	return e.Err
}

// SchemaDriftError reports a table whose live schema could not be read or
// reconciled. The table is skipped for the current import.
type SchemaDriftError struct {
	Table     string
	Statement string
	Err       error
}

func (e *SchemaDriftError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("reconcile %s: %v (statement: %s)", e.Table, e.Err, e.Statement)
	}
	return fmt.Sprintf("reconcile %s: %v", e.Table, e.Err)
}

func (e *SchemaDriftError) Unwrap() error {
	return e.Err
}

// RowInsertionError reports one row that could not be stored. The row is
// skipped and the rest of the import continues.
type RowInsertionError struct {
	Table     string
	Line      int
	Statement string
	Values    []any
	Err       error
}

func (e *RowInsertionError) Error() string {
	return fmt.Sprintf("insert into %s (line %d): %v", e.Table, e.Line, e.Err)
}

func (e *RowInsertionError) Unwrap() error {
	return e.Err
}

// retryableCodes are SQLSTATEs that mean another writer got in the way.
var retryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
	"57P03": true, // cannot_connect_now
}

// IsRetryable reports whether err means the store was busy or locked, so the
// whole import can be attempted again from scratch.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreBusy) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableCodes[pgErr.Code]
	}

	return pgconn.SafeToRetry(err)
}

// pgErrorDetail renders a PgError with its SQLSTATE for log lines.
func pgErrorDetail(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err.Error()
	}
	parts := []string{pgErr.Message, "sqlstate=" + pgErr.Code}
	if pgErr.Detail != "" {
		parts = append(parts, "detail="+pgErr.Detail)
	}
	return strings.Join(parts, " ")
}
