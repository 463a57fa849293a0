package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/xerimport/internal/config"
	"github.com/JonMunkholm/xerimport/internal/xer"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service provides the import and read operations over the relational store.
type Service struct {
	pool    *pgxpool.Pool
	cfg     config.ImportConfig
	parser  *xer.Parser
	limiter *ImportLimiter
}

// NewService creates a Service from validated import settings.
func NewService(pool *pgxpool.Pool, cfg config.ImportConfig) (*Service, error) {
	enc, err := xer.LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	markers := xer.Markers{Table: cfg.TableMarker, Fields: cfg.FieldMarker, Record: cfg.RecordMarker}
	if err := markers.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		pool:    pool,
		cfg:     cfg,
		parser:  xer.NewParser(markers, enc),
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
	}, nil
}

// EnsureSchema creates the import control table if it is missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createImportTableSQL); err != nil {
		return fmt.Errorf("create %s: %w", ImportTable, err)
	}
	slog.Debug("control table ready", "table", ImportTable)
	return nil
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
