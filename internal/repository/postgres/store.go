// Package postgres implements the repository contract on pgx. Multi-step
// engine operations run inside serializable transactions opened by WithinTx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwitness/chronicle/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can
// run against either.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements repository.Store over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// NewStore creates a pool-backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Records() repository.RecordRepository     { return &recordRepository{q: s.q} }
func (s *Store) Proposals() repository.ProposalRepository { return &proposalRepository{q: s.q} }
func (s *Store) Sessions() repository.SessionRepository   { return &sessionRepository{q: s.q} }
func (s *Store) Audit() repository.AuditRepository        { return &auditRepository{q: s.q} }

// WithinTx runs fn inside a serializable transaction. A store already bound
// to a transaction joins it instead of opening a nested one.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	if _, bound := s.q.(pgx.Tx); bound {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
