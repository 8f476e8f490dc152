package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can be
// shared between transactional and plain lookups.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager begins transactions spanning multiple repositories.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager bound to db.
func NewTxManager(db *sql.DB) *TxManager { return &TxManager{db: db} }

// WithinTx runs fn in a transaction.  The transaction is committed when fn
// returns nil and rolled back otherwise.
func (m *TxManager) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// SavepointTx runs fn under a savepoint.  When fn fails, work done since the
// savepoint is undone and the error is returned; the outer transaction
// remains usable.
func (m *TxManager) SavepointTx(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint %s: %w (after %v)", name, rbErr, err)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

// inPlaceholders returns "?, ?, ?" with n placeholders.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

func uint64Args(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
