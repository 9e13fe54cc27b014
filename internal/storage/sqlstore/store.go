// Package sqlstore implements storage.Provider queries over database/sql.
// The sqlite and postgres packages supply the connection and Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/storage"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries binds the SQL to either the pool or an open transaction.
type queries struct {
	q querier
	d Dialect
}

var _ storage.Tx = (*queries)(nil)

func (q *queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.d.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.d.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return q.q.QueryRowContext(ctx, q.d.rebind(query), args...)
}

// wrap classifies a driver error for the engine.
func (q *queries) wrap(op string, err error) error {
	return classify(q.d, op, err)
}

func classify(d Dialect, op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.KindInternal, op, err)
	case d.IsConflict != nil && d.IsConflict(err):
		return apperrors.Wrap(apperrors.KindConflict, op, err)
	case d.IsUniqueViolation != nil && d.IsUniqueViolation(err):
		return apperrors.Wrap(apperrors.KindAlreadyExists, op, err)
	}
	return apperrors.Wrap(apperrors.KindInternal, op, err)
}

// Store is the pool-level half of a storage.Provider.
type Store struct {
	queries
	db *sql.DB
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		queries: queries{q: db, d: dialect},
		db:      db,
	}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RunTransaction runs fn inside one database transaction.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "storage.RunTransaction"

	tx, err := s.db.BeginTx(ctx, s.d.TxOptions)
	if err != nil {
		return classify(s.d, op, err)
	}

	if err := fn(&queries{q: tx, d: s.d}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("Rollback failed", "dialect", s.d.Name, "error", rbErr)
		}
		return classify(s.d, op, err)
	}

	if err := tx.Commit(); err != nil {
		return classify(s.d, op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(constants.TimestampFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(constants.TimestampFormat, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}
