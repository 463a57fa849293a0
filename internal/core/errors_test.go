package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store busy", ErrStoreBusy, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"wrapped in schema error", &SchemaDriftError{Table: "T", Err: &pgconn.PgError{Code: "55P03"}}, true},
		{"wrapped with context", fmt.Errorf("table T: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"undefined column", &pgconn.PgError{Code: "42703"}, false},
		{"value too long", &pgconn.PgError{Code: "22001"}, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("commit: %w", context.DeadlineExceeded), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestImportFailure(t *testing.T) {
	err := &ImportFailure{Path: "p.xer", Stage: StageCommit, Attempts: 3, Err: ErrStoreBusy}
	if !errors.Is(err, ErrStoreBusy) {
		t.Error("ImportFailure should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Error() = %q, want attempt count", err.Error())
	}

	single := &ImportFailure{Path: "p.xer", Stage: StageRead, Attempts: 1, Err: ErrFileTooLarge}
	if strings.Contains(single.Error(), "attempts") {
		t.Errorf("Error() = %q, single attempt should not mention attempts", single.Error())
	}
}

func TestRowInsertionError(t *testing.T) {
	cause := &pgconn.PgError{Code: "22001", Message: "value too long"}
	err := &RowInsertionError{Table: "TASK", Line: 12, Err: cause}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "22001" {
		t.Error("RowInsertionError should unwrap to the driver error")
	}
	if !strings.Contains(err.Error(), "line 12") {
		t.Errorf("Error() = %q, want line number", err.Error())
	}
}

func TestPgErrorDetail(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23502", Message: "null value", Detail: "Failing row"})
	got := pgErrorDetail(err)
	for _, want := range []string{"null value", "sqlstate=23502", "detail=Failing row"} {
		if !strings.Contains(got, want) {
			t.Errorf("pgErrorDetail = %q, missing %q", got, want)
		}
	}
	if got := pgErrorDetail(errors.New("plain")); got != "plain" {
		t.Errorf("pgErrorDetail(plain) = %q", got)
	}
}
