package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// pool is the subset of *pgxpool.Pool the ledger needs. pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Executor is the single path every ledger statement takes. Each call gets
// its own transaction; failures are logged with the statement and its bound
// arguments and then returned.
type Executor struct {
	pool   pool
	logger *zap.Logger
}

// NewExecutor wraps a pool.
func NewExecutor(p pool, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{pool: p, logger: logger}
}

// Execute runs stmt inside a transaction and commits it. When scan is set the
// statement is treated as returning a single row that scan consumes.
func (e *Executor) Execute(ctx context.Context, stmt string, args []any, scan func(pgx.Row) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return e.fail(stmt, args, fmt.Errorf("begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			e.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if scan != nil {
		if err := scan(tx.QueryRow(ctx, stmt, args...)); err != nil {
			return e.fail(stmt, args, err)
		}
	} else {
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return e.fail(stmt, args, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return e.fail(stmt, args, fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// Query runs a read statement and hands every row to scan.
func (e *Executor) Query(ctx context.Context, stmt string, args []any, scan func(pgx.Row) error) error {
	rows, err := e.pool.Query(ctx, stmt, args...)
	if err != nil {
		return e.fail(stmt, args, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return e.fail(stmt, args, fmt.Errorf("scan row: %w", err))
		}
	}
	if err := rows.Err(); err != nil {
		return e.fail(stmt, args, err)
	}
	return nil
}

// Ping checks connectivity.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (e *Executor) Close() {
	e.pool.Close()
}

func (e *Executor) fail(stmt string, args []any, err error) error {
	fields := []zap.Field{
		zap.String("statement", compactStatement(stmt)),
		zap.Any("args", args),
		zap.Error(err),
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields, zap.String("sqlstate", pgErr.Code))
	}
	e.logger.Error("statement failed", fields...)
	return fmt.Errorf("execute statement: %w", err)
}

func compactStatement(stmt string) string {
	return strings.Join(strings.Fields(stmt), " ")
}
