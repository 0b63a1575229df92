// Package store persists labs, job postings and the daily job history in
// SQLite. Writes are grouped with Update so a source is reconciled in one
// transaction; reads observe committed state only.
package store

import (
	"context"
	"database/sql"
	"time"

	"labjobs/common/telemetry"
	"labjobs/internal/errors"

	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("labjobs/store")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Tx exposes the table operations over either a transaction or the plain
// connection.
type Tx struct {
	q querier
}

// Update runs fn in a transaction that commits only if fn returns nil.
// Failures come back as STORAGE errors unless fn already returned a
// DomainError.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Update")
	defer func() {
		if err != nil {
			telemetry.Fail(span, err)
		}
		span.End()
	}()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("beginning transaction", err)
	}

	if err := fn(&Tx{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		if errors.TypeOf(err) == errors.ErrTypeInternal {
			return errors.Storage("transaction aborted", err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Storage("committing transaction", err)
	}
	return nil
}

// View runs fn against one transaction so several reads share a snapshot.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("beginning read transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{q: sqlTx}); err != nil {
		if errors.TypeOf(err) == errors.ErrTypeInternal {
			return errors.Storage("read transaction", err)
		}
		return err
	}
	return nil
}

func (s *Store) direct() *Tx {
	return &Tx{q: s.db}
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
