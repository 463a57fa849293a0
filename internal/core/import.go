package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/xerimport/internal/logging"
	"github.com/JonMunkholm/xerimport/internal/xer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ImportFile parses the export file at path and stores it as one import.
//
// The import is a single transaction: either every reconciled table change
// and stored row commits together with the new import record, or nothing
// does. When the store is busy the whole attempt is rolled back and rerun
// with a growing delay, up to the configured number of attempts. Failures
// are returned as *ImportFailure.
func (s *Service) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	start := time.Now()
	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithFields(ctx, "file", path)

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("no import slot available", "error", err)
		return nil, &ImportFailure{Path: path, Stage: StageAcquire, Err: err}
	}
	defer s.limiter.Release()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	logger.Info("import started")

	doc, stage, err := s.readDocument(path)
	if err != nil {
		logger.Error("import failed, nothing was committed", "stage", stage, "error", err)
		return nil, &ImportFailure{Path: path, Stage: stage, Err: err}
	}
	logger.Info("file parsed", "tables", len(doc.Tables), "records", doc.RecordCount())

	fileName := filepath.Base(path)
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result *ImportResult
	attempt := 0
	for {
		attempt++
		result, err = s.importDocument(ctx, fileName, runID, doc)
		if err == nil {
			break
		}

		retryable := IsRetryable(err)
		if !retryable || attempt >= maxAttempts {
			if retryable {
				err = fmt.Errorf("%w: %w", ErrStoreBusy, err)
			}
			logger.Error("import failed, nothing was committed",
				"stage", StageCommit,
				"attempts", attempt,
				"error", pgErrorDetail(err),
			)
			return nil, &ImportFailure{Path: path, Stage: StageCommit, Attempts: attempt, Err: err}
		}

		delay := s.cfg.RetryBackoff * time.Duration(attempt)
		logger.Warn("store busy, retrying import",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", pgErrorDetail(err),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, &ImportFailure{Path: path, Stage: StageCommit, Attempts: attempt, Err: err}
		}
	}

	result.Attempts = attempt
	result.Duration = time.Since(start)

	logger.Info("import committed",
		"import_id", result.ImportID,
		"tables", len(result.Tables),
		"inserted", result.Inserted(),
		"skipped", result.Skipped(),
		"attempts", attempt,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// readDocument checks the size limit and parses the file.
func (s *Service) readDocument(path string) (*xer.Document, ImportStage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, StageRead, err
	}
	if info.IsDir() {
		return nil, StageRead, fmt.Errorf("%s is a directory", path)
	}
	if s.cfg.MaxFileSize > 0 && info.Size() > s.cfg.MaxFileSize {
		return nil, StageRead, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, info.Size(), s.cfg.MaxFileSize)
	}

	doc, err := s.parser.ParseFile(path)
	if err != nil {
		return nil, StageParse, err
	}
	return doc, "", nil
}

// importDocument runs one attempt. Any returned error means the transaction
// was rolled back.
func (s *Service) importDocument(ctx context.Context, fileName, runID string, doc *xer.Document) (*ImportResult, error) {
	tables := importableTables(ctx, doc)

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

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	if err := lockTables(ctx, tx, names); err != nil {
		return nil, err
	}

	rec, err := insertImportRecord(ctx, tx, fileName, runID)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("import record created", "import_id", rec.ID)

	result := &ImportResult{
		ImportID:   rec.ID,
		RunID:      runID,
		FileName:   fileName,
		UploadedAt: rec.UploadedAt,
	}

	for _, t := range tables {
		tr, err := s.importTable(ctx, tx, rec.ID, t)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		result.Tables = append(result.Tables, tr)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// importableTables returns the parsed tables that can be stored, in document order.
func importableTables(ctx context.Context, doc *xer.Document) []*xer.Table {
	logger := logging.FromContext(ctx)

	var tables []*xer.Table
	for _, t := range doc.Tables {
		switch {
		case t.Name == ImportTable:
			logger.Warn("skipping table that collides with the control table", "table", t.Name)
		case len(t.Name) > maxIdentifierLen:
			logger.Warn("skipping table with a name over the identifier limit", "table", t.Name, "limit", maxIdentifierLen)
		case strings.ContainsRune(t.Name, 0):
			logger.Warn("skipping table with a NUL byte in its name", "table", strings.ReplaceAll(t.Name, "\x00", `\x00`))
		case len(t.Fields) == 0:
			logger.Debug("skipping table without fields", "table", t.Name)
		case len(t.Records) == 0:
			logger.Debug("skipping table without records", "table", t.Name)
		default:
			tables = append(tables, t)
		}
	}
	return tables
}

// lockTables takes a transaction-scoped advisory lock per table name.
// Locks are taken in sorted order so two imports touching overlapping tables
// cannot deadlock on each other.
func lockTables(ctx context.Context, tx pgx.Tx, names []string) error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	for i, name := range sorted {
		if i > 0 && sorted[i-1] == name {
			continue
		}
		if _, err := tx.Exec(ctx, tableLockSQL, tableLockNamespace, name); err != nil {
			return fmt.Errorf("lock table %s: %w", name, err)
		}
	}
	return nil
}

// insertImportRecord creates the import record and returns its assigned id.
func insertImportRecord(ctx context.Context, tx pgx.Tx, fileName, runID string) (ImportRecord, error) {
	rec := ImportRecord{FileName: fileName, RunID: runID}
	if err := tx.QueryRow(ctx, insertImportSQL, fileName, runID).Scan(&rec.ID, &rec.UploadedAt); err != nil {
		return ImportRecord{}, fmt.Errorf("insert import record: %w", err)
	}
	return rec, nil
}

// importTable reconciles one table and stores its records, all inside a
// savepoint. A table whose schema cannot be reconciled is rolled back to the
// savepoint and skipped; the returned error is reserved for failures that
// end the whole attempt.
func (s *Service) importTable(ctx context.Context, tx pgx.Tx, importID int64, t *xer.Table) (TableResult, error) {
	res := TableResult{Table: t.Name}
	logger := logging.WithFields(ctx, "table", t.Name)

	fields, rejected := sanitizeFields(declaredFields(t))
	if len(rejected) > 0 {
		logger.Warn("ignoring fields that cannot be stored as columns", "fields", rejected)
		res.DroppedFields = append(res.DroppedFields, rejected...)
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer sp.Rollback(ctx)

	rec, err := reconcileTable(ctx, sp, t.Name, fields)
	if err != nil {
		if IsRetryable(err) {
			return res, err
		}
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return res, fmt.Errorf("roll back after schema error: %w", rbErr)
		}
		logger.Error("skipping table, schema could not be reconciled", "error", err)
		res.Error = err.Error()
		res.Skipped = len(t.Records)
		return res, nil
	}
	res.Created = rec.Created
	res.AddedColumns = rec.Added
	if rec.Created {
		logger.Info("table created", "columns", len(rec.Columns))
	} else if len(rec.Added) > 0 {
		logger.Info("table columns added", "added", rec.Added)
	}

	set := planRows(rec.Columns, t.Records)
	for _, f := range set.dropped {
		if !containsColumn(res.DroppedFields, f) {
			res.DroppedFields = append(res.DroppedFields, f)
		}
	}
	if len(set.dropped) > 0 {
		logger.Warn("dropping values for fields that are not stored columns",
			"fields", set.dropped,
			"records", set.droppedIn,
		)
	}
	if len(set.emptyLines) > 0 {
		logger.Warn("skipping records with no storable values",
			"count", len(set.emptyLines),
			"lines", firstLines(set.emptyLines),
		)
		res.Skipped += len(set.emptyLines)
	}

	if len(set.plans) > 0 {
		if err := s.storeRows(ctx, sp, &res, rec.Columns, set.plans, importID); err != nil {
			return res, err
		}
	}

	if err := sp.Commit(ctx); err != nil {
		return res, fmt.Errorf("release savepoint: %w", err)
	}

	logger.Info("table imported", "inserted", res.Inserted, "skipped", res.Skipped, "copy", res.Copied)
	return res, nil
}

// storeRows writes planned rows, with COPY when enabled and row by row otherwise
// or when COPY is rejected.
func (s *Service) storeRows(ctx context.Context, tx pgx.Tx, res *TableResult, columns []string, plans []rowPlan, importID int64) error {
	logger := logging.WithFields(ctx, "table", res.Table)

	if s.cfg.UseCopy {
		n, err := insertByCopy(ctx, tx, res.Table, columns, plans, importID)
		if err == nil {
			res.Inserted += n
			res.Copied = true
			return nil
		}
		if IsRetryable(err) {
			return err
		}
		logger.Warn("COPY rejected, falling back to row inserts", "error", pgErrorDetail(err))
	}

	inserted, failed, err := insertByRow(ctx, tx, logger, res.Table, plans, importID)
	res.Inserted += inserted
	res.Skipped += failed
	return err
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CheckExtension accepts paths whose extension matches ext, ignoring case.
func CheckExtension(path, ext string) error {
	if ext == "" || strings.EqualFold(filepath.Ext(path), ext) {
		return nil
	}
	return fmt.Errorf("%w: %s (want %s)", ErrNotExportFile, filepath.Base(path), ext)
}
