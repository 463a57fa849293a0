package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/xerimport/internal/xer"
)

// reconciliation is the outcome of aligning a declared field list with a stored table.
type reconciliation struct {
	Columns []string // authoritative data columns, back-reference excluded
	Created bool
	Added   []string
}

// declaredFields returns every field a table's records carry: the table's
// current declaration first, then fields only an earlier declaration had,
// in first-seen order. Records read before a redeclaration keep their values.
func declaredFields(t *xer.Table) []string {
	seen := make(map[string]bool, len(t.Fields))
	fields := make([]string, 0, len(t.Fields))
	add := func(list []string) {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}

	add(t.Fields)
	var prev []string
	for _, rec := range t.Records {
		// Records under one declaration share its slice.
		if len(rec.Fields) == 0 || (len(prev) == len(rec.Fields) && &prev[0] == &rec.Fields[0]) {
			continue
		}
		prev = rec.Fields
		add(rec.Fields)
	}
	return fields
}

// validName reports whether s can be sent to the store as an identifier.
// The server rejects NUL in any text.
func validName(s string) bool {
	return s != "" && len(s) <= maxIdentifierLen && !strings.ContainsRune(s, 0)
}

// sanitizeFields removes declared names that cannot become columns: empty
// names, names holding NUL, the back-reference column, names over the
// identifier limit. Repeated names keep their first position. Case is
// preserved exactly.
func sanitizeFields(fields []string) (kept, rejected []string) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true

		if f == BackRefColumn || !validName(f) {
			rejected = append(rejected, f)
			continue
		}
		kept = append(kept, f)
	}
	return kept, rejected
}

// missingColumns returns the declared fields absent from existing, in declared order.
func missingColumns(declared, existing []string) []string {
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}

	var missing []string
	for _, f := range declared {
		if !have[f] {
			missing = append(missing, f)
			have[f] = true
		}
	}
	return missing
}

// reconcileTable makes sure a stored table exists with at least the declared
// fields and returns the columns rows may be written to.
//
// Existing tables are read from live catalog metadata on every call, never
// from a cache, so manual edits and earlier partial runs are seen as they are.
func reconcileTable(ctx context.Context, db DBTX, table string, declared []string) (reconciliation, error) {
	exists, err := tableExists(ctx, db, table)
	if err != nil {
		return reconciliation{}, &SchemaDriftError{Table: table, Statement: tableExistsSQL, Err: err}
	}

	if !exists {
		stmt := buildCreateTable(table, declared)
		if _, err := db.Exec(ctx, stmt); err != nil {
			return reconciliation{}, &SchemaDriftError{Table: table, Statement: stmt, Err: err}
		}
		idx := buildBackRefIndex(table)
		if _, err := db.Exec(ctx, idx); err != nil {
			return reconciliation{}, &SchemaDriftError{Table: table, Statement: idx, Err: err}
		}
		return reconciliation{
			Columns: append([]string(nil), declared...),
			Created: true,
		}, nil
	}

	existing, err := liveColumns(ctx, db, table)
	if err != nil {
		return reconciliation{}, &SchemaDriftError{Table: table, Statement: liveColumnsSQL, Err: err}
	}
	if len(existing) == 0 {
		return reconciliation{}, &SchemaDriftError{Table: table, Err: errors.New("table exists but reports no columns")}
	}
	if !containsColumn(existing, BackRefColumn) {
		return reconciliation{}, &SchemaDriftError{
			Table: table,
			Err:   fmt.Errorf("table has no %s column; it was not created by this importer", BackRefColumn),
		}
	}

	rec := reconciliation{Columns: make([]string, 0, len(existing)+len(declared))}
	for _, c := range existing {
		if c != BackRefColumn {
			rec.Columns = append(rec.Columns, c)
		}
	}

	for _, col := range missingColumns(declared, existing) {
		stmt := buildAddColumn(table, col)
		if _, err := db.Exec(ctx, stmt); err != nil {
			return reconciliation{}, &SchemaDriftError{Table: table, Statement: stmt, Err: err}
		}
		rec.Columns = append(rec.Columns, col)
		rec.Added = append(rec.Added, col)
	}

	return rec, nil
}

// tableExists checks the live catalog for a table in the current schema.
func tableExists(ctx context.Context, db DBTX, table string) (bool, error) {
	var exists bool
	if err := db.QueryRow(ctx, tableExistsSQL, table).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// liveColumns returns the column names of a table in ordinal order.
func liveColumns(ctx context.Context, db DBTX, table string) ([]string, error) {
	rows, err := db.Query(ctx, liveColumnsSQL, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
