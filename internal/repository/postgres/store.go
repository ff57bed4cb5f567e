package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/connectpro/internal/repository"
)

// Store implements repository.Store over a pool.
type Store struct {
	db *DB
}

var _ repository.Store = (*Store)(nil)

// NewStore constructs the store.
func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) Users() repository.UserRepository { return NewUserRepo(s.db.Pool) }

func (s *Store) Connections() repository.ConnectionRepository {
	return NewConnectionRepo(s.db.Pool)
}

func (s *Store) Logs() repository.LogRepository { return NewLogRepo(s.db.Pool) }

func (s *Store) Tags() repository.TagRepository { return NewTagRepo(s.db.Pool) }

// Atomic runs fn inside one read-committed transaction.
// Row locks taken by GetForUpdate serialize log mutations of the same connection.
func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Repos) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	return fn(txRepos{q: tx})
}

type txRepos struct{ q Querier }

func (t txRepos) Connections() repository.ConnectionRepository { return NewConnectionRepo(t.q) }
func (t txRepos) Logs() repository.LogRepository               { return NewLogRepo(t.q) }
func (t txRepos) Tags() repository.TagRepository               { return NewTagRepo(t.q) }
