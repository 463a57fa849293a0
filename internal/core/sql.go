package core

import (
	"fmt"
	"strings"
)

// tableLockNamespace is the first key of every per-table advisory lock, so
// importer locks never collide with advisory locks taken by other software.
const tableLockNamespace int32 = 0x58455231 // "XER1"

const createImportTableSQL = `CREATE TABLE IF NOT EXISTS ` + ImportTable + ` (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	filename    TEXT NOT NULL,
	upload_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	run_id      UUID NOT NULL
)`

const insertImportSQL = `INSERT INTO ` + ImportTable + ` (filename, run_id)
VALUES ($1, $2)
RETURNING id, upload_date`

const tableExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = current_schema() AND table_name = $1
)`

const liveColumnsSQL = `SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

const storedTablesSQL = `SELECT table_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND column_name = $1 AND table_name <> $2
ORDER BY table_name`

const tableLockSQL = `SELECT pg_advisory_xact_lock($1, hashtext($2))`

// quoteIdentifier quotes a SQL identifier to prevent injection.
// Quoting also keeps the name case-sensitive.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteColumns quotes every column name.
func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentifier(c)
	}
	return quoted
}

// placeholders returns "$1, $2, ... $n".
func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

// buildCreateTable returns the DDL for a new stored table: every field as a
// nullable TEXT column followed by the back-reference column.
func buildCreateTable(table string, fields []string) string {
	defs := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		defs = append(defs, quoteIdentifier(f)+" TEXT")
	}
	defs = append(defs, fmt.Sprintf("%s BIGINT NOT NULL REFERENCES %s (id)",
		quoteIdentifier(BackRefColumn), quoteIdentifier(ImportTable)))

	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(table), strings.Join(defs, ", "))
}

// buildBackRefIndex returns the DDL for the index that serves per-import reads and deletes.
func buildBackRefIndex(table string) string {
	return fmt.Sprintf("CREATE INDEX ON %s (%s)", quoteIdentifier(table), quoteIdentifier(BackRefColumn))
}

// buildAddColumn returns the DDL that adds one nullable TEXT column.
func buildAddColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdentifier(table), quoteIdentifier(column))
}

// buildInsert returns a parameterized INSERT for the given columns plus the
// back-reference column, which takes the last placeholder.
func buildInsert(table string, columns []string) string {
	cols := append(quoteColumns(columns), quoteIdentifier(BackRefColumn))
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table), strings.Join(cols, ", "), placeholders(len(cols)))
}

// buildSelectByImport returns a query for all rows of one import.
func buildSelectByImport(table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(quoteColumns(columns), ", "), quoteIdentifier(table), quoteIdentifier(BackRefColumn))
}

// buildSelectAll returns a query for every row of a stored table.
func buildSelectAll(table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoteColumns(columns), ", "), quoteIdentifier(table), quoteIdentifier(BackRefColumn))
}

// buildDeleteByImport returns a DELETE for all rows of one import.
func buildDeleteByImport(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", quoteIdentifier(table), quoteIdentifier(BackRefColumn))
}

// containsColumn checks if a column name exists in the list.
// The comparison is exact: stored names are case-sensitive.
func containsColumn(columns []string, target string) bool {
	for _, col := range columns {
		if col == target {
			return true
		}
	}
	return false
}
