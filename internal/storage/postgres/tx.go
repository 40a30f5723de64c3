// Package postgres implements storage.Store on PostgreSQL. Every attempt runs
// at SERIALIZABLE isolation; rows that a transaction decides on are also taken
// FOR UPDATE so that most races queue behind the row lock instead of aborting.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Attempt(ctx context.Context, fn func(ctx context.Context, r storage.Reader, w storage.Writer) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}

	q := &queries{tx: tx}
	if err := fn(ctx, q, q); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify maps serialization failures and deadlocks onto the retryable
// conflict error, leaving everything else untouched.
func classify(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isSerializationFailure(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}
