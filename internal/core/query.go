package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// StoredTables returns the names of tables created by imports, sorted.
func (s *Service) StoredTables(ctx context.Context) ([]string, error) {
	return storedTables(ctx, s.pool)
}

func storedTables(ctx context.Context, db DBTX) ([]string, error) {
	rows, err := db.Query(ctx, storedTablesSQL, BackRefColumn, ImportTable)
	if err != nil {
		return nil, fmt.Errorf("list stored tables: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// TableColumns returns the data columns of a stored table in ordinal order,
// followed by the back-reference column.
func (s *Service) TableColumns(ctx context.Context, table string) ([]string, error) {
	return tableColumns(ctx, s.pool, table)
}

func tableColumns(ctx context.Context, db DBTX, table string) ([]string, error) {
	if table == ImportTable {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	live, err := liveColumns(ctx, db, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	if !containsColumn(live, BackRefColumn) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	cols := make([]string, 0, len(live))
	for _, c := range live {
		if c != BackRefColumn {
			cols = append(cols, c)
		}
	}
	return append(cols, BackRefColumn), nil
}

// RowsForImport returns the rows one import stored in one table.
func (s *Service) RowsForImport(ctx context.Context, table string, importID int64) (*TableData, error) {
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, buildSelectByImport(table, cols), importID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return collectTable(rows, table, cols)
}

// AllRows returns every row of a stored table, ordered by import.
func (s *Service) AllRows(ctx context.Context, table string) (*TableData, error) {
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, buildSelectAll(table, cols))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return collectTable(rows, table, cols)
}

func collectTable(rows pgx.Rows, table string, cols []string) (*TableData, error) {
	defer rows.Close()

	data := &TableData{Table: table, Columns: cols}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		row := make(TableRow, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		data.Rows = append(data.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return data, nil
}
