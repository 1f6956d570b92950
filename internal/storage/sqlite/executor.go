package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Executor runs every ledger statement in its own transaction and logs the
// statement with its arguments when it fails.
type Executor struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewExecutor wraps an open database handle.
func NewExecutor(db *sqlx.DB, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{db: db, logger: logger}
}

// Execute runs stmt inside a transaction and commits it.
func (e *Executor) Execute(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, e.fail(stmt, args, fmt.Errorf("begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, e.fail(stmt, args, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, e.fail(stmt, args, fmt.Errorf("commit: %w", err))
	}
	committed = true
	return res, nil
}

// Select runs a read statement and scans every row into dest.
func (e *Executor) Select(ctx context.Context, dest any, stmt string, args ...any) error {
	if err := e.db.SelectContext(ctx, dest, stmt, args...); err != nil {
		return e.fail(stmt, args, err)
	}
	return nil
}

func (e *Executor) fail(stmt string, args []any, err error) error {
	e.logger.Error("statement failed",
		zap.String("statement", strings.Join(strings.Fields(stmt), " ")),
		zap.Any("args", args),
		zap.Error(err),
	)
	return fmt.Errorf("execute statement: %w", err)
}
