package core

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/xerimport/internal/xer"
	"github.com/jackc/pgx/v5"
)

// maxLoggedLines caps line-number lists in aggregated warnings.
const maxLoggedLines = 20

// rowPlan is one record mapped onto the authoritative columns.
type rowPlan struct {
	line    int
	columns []string
	values  []any
}

// rowPlanSet is the insert plan for one table.
type rowPlanSet struct {
	plans      []rowPlan
	dropped    []string // fields not in the authoritative columns, first-seen order
	droppedIn  int      // records that lost at least one field
	emptyLines []int    // records with nothing left to insert
}

// planRows maps every record to the authoritative columns by field name.
// Values whose field is not a stored column are dropped; fields without a
// value stay absent (NULL); records left with no columns are not planned.
func planRows(authoritative []string, records []xer.Record) rowPlanSet {
	known := make(map[string]bool, len(authoritative))
	for _, c := range authoritative {
		known[c] = true
	}

	var set rowPlanSet
	droppedSeen := make(map[string]bool)

	for _, rec := range records {
		plan := rowPlan{line: rec.Line}
		seen := make(map[string]bool, len(rec.Fields))
		lost := false

		for i, f := range rec.Fields {
			if seen[f] {
				continue
			}
			seen[f] = true

			if !known[f] {
				lost = true
				if !droppedSeen[f] {
					droppedSeen[f] = true
					set.dropped = append(set.dropped, f)
				}
				continue
			}
			if i >= len(rec.Values) {
				continue
			}
			plan.columns = append(plan.columns, f)
			plan.values = append(plan.values, rec.Values[i])
		}

		if lost {
			set.droppedIn++
		}
		if len(plan.columns) == 0 {
			set.emptyLines = append(set.emptyLines, rec.Line)
			continue
		}
		set.plans = append(set.plans, plan)
	}

	return set
}

// copyColumns returns the authoritative columns used by at least one plan,
// in authoritative order.
func copyColumns(authoritative []string, plans []rowPlan) []string {
	used := make(map[string]bool)
	for _, p := range plans {
		for _, c := range p.columns {
			used[c] = true
		}
	}

	var cols []string
	for _, c := range authoritative {
		if used[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// copyRows lays plans out as full-width rows for COPY. Columns a record does
// not carry are nil. The back-reference value is the last column.
func copyRows(cols []string, plans []rowPlan, importID int64) [][]any {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}

	rows := make([][]any, len(plans))
	for i, p := range plans {
		row := make([]any, len(cols)+1)
		for j, c := range p.columns {
			row[pos[c]] = p.values[j]
		}
		row[len(cols)] = importID
		rows[i] = row
	}
	return rows
}

// insertByCopy writes all plans with one COPY inside its own savepoint.
// On failure the savepoint is rolled back and the error returned, leaving the
// table as it was so the caller can fall back to row inserts.
func insertByCopy(ctx context.Context, tx pgx.Tx, table string, authoritative []string, plans []rowPlan, importID int64) (int, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sp.Rollback(ctx)

	cols := copyColumns(authoritative, plans)
	copyCols := append(append([]string(nil), cols...), BackRefColumn)

	n, err := sp.CopyFrom(ctx, pgx.Identifier{table}, copyCols, pgx.CopyFromRows(copyRows(cols, plans, importID)))
	if err != nil {
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return int(n), nil
}

// insertByRow inserts plans one at a time, each inside its own savepoint.
// A failing row is rolled back, logged with its statement and values, and
// skipped. The returned error is non-nil only when the transaction itself
// can no longer be used or the store reported it was busy.
func insertByRow(ctx context.Context, tx pgx.Tx, logger *slog.Logger, table string, plans []rowPlan, importID int64) (inserted, failed int, err error) {
	for _, p := range plans {
		stmt := buildInsert(table, p.columns)
		args := make([]any, 0, len(p.values)+1)
		args = append(args, p.values...)
		args = append(args, importID)

		sp, err := tx.Begin(ctx)
		if err != nil {
			return inserted, failed, err
		}

		if _, execErr := sp.Exec(ctx, stmt, args...); execErr != nil {
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return inserted, failed, rbErr
			}
			if IsRetryable(execErr) {
				return inserted, failed, execErr
			}

			rowErr := &RowInsertionError{Table: table, Line: p.line, Statement: stmt, Values: args, Err: execErr}
			logger.Error("row insert failed, skipping row",
				"line", rowErr.Line,
				"statement", rowErr.Statement,
				"values", rowErr.Values,
				"error", pgErrorDetail(execErr),
			)
			failed++
			continue
		}

		if err := sp.Commit(ctx); err != nil {
			return inserted, failed, err
		}
		inserted++
	}

	return inserted, failed, nil
}

// firstLines trims a line list for logging.
func firstLines(lines []int) []int {
	if len(lines) > maxLoggedLines {
		return lines[:maxLoggedLines]
	}
	return lines
}
