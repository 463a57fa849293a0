package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/xerimport/internal/logging"
	"github.com/jackc/pgx/v5"
)

const listImportsSQL = `SELECT id, filename, upload_date, run_id::text
FROM ` + ImportTable + `
ORDER BY id DESC`

const getImportSQL = `SELECT id, filename, upload_date, run_id::text
FROM ` + ImportTable + `
WHERE id = $1`

const lockImportSQL = `SELECT id FROM ` + ImportTable + ` WHERE id = $1 FOR UPDATE`

const deleteImportSQL = `DELETE FROM ` + ImportTable + ` WHERE id = $1`

// ListImports returns every import record, newest first.
func (s *Service) ListImports(ctx context.Context) ([]ImportRecord, error) {
	rows, err := s.pool.Query(ctx, listImportsSQL)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[ImportRecord])
}

// GetImport returns one import record, or ErrNotFound.
func (s *Service) GetImport(ctx context.Context, id int64) (ImportRecord, error) {
	rows, err := s.pool.Query(ctx, getImportSQL, id)
	if err != nil {
		return ImportRecord{}, fmt.Errorf("get import %d: %w", id, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[ImportRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportRecord{}, fmt.Errorf("get import %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ImportRecord{}, fmt.Errorf("get import %d: %w", id, err)
	}
	return rec, nil
}

// DeleteImport removes an import record and every row it stored, in one
// transaction. Stored tables and their columns are left in place.
// Returns the number of rows deleted per table.
func (s *Service) DeleteImport(ctx context.Context, id int64) (map[string]int64, error) {
	logger := logging.WithFields(ctx, "import_id", id)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.cfg.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.cfg.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	var found int64
	if err := tx.QueryRow(ctx, lockImportSQL, id).Scan(&found); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("delete import %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("delete import %d: %w", id, err)
	}

	tables, err := storedTables(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := lockTables(ctx, tx, tables); err != nil {
		return nil, err
	}

	deleted := make(map[string]int64, len(tables))
	for _, table := range tables {
		tag, err := tx.Exec(ctx, buildDeleteByImport(table), id)
		if err != nil {
			return nil, fmt.Errorf("delete rows from %s: %w", table, err)
		}
		if n := tag.RowsAffected(); n > 0 {
			deleted[table] = n
		}
	}

	if _, err := tx.Exec(ctx, deleteImportSQL, id); err != nil {
		return nil, fmt.Errorf("delete import record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	logger.Info("import deleted", "tables", len(deleted))
	return deleted, nil
}
