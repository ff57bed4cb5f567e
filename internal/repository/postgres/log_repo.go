package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/gofrs/uuid/v5"
)

// LogRepo implements LogRepository using PostgreSQL.
type LogRepo struct{ q Querier }

// NewLogRepo constructs a log repository over a pool or a transaction.
func NewLogRepo(q Querier) *LogRepo { return &LogRepo{q: q} }

const logCols = `id, user_id, connection_id, type, notes, tags, created_at`

func scanLog(row pgx.Row) (*model.Log, error) {
	var l model.Log
	if err := row.Scan(&l.ID, &l.UserID, &l.ConnectionID, &l.Type, &l.Notes, &l.Tags, &l.CreatedAt); err != nil {
		return nil, err
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	return &l, nil
}

// Create inserts a log with the caller-supplied created_at.
func (r *LogRepo) Create(ctx context.Context, l *model.Log) error {
	const q = `
INSERT INTO logs (id, user_id, connection_id, type, notes, tags, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.q.Exec(ctx, q, l.ID, l.UserID, l.ConnectionID, l.Type, l.Notes, tags, l.CreatedAt)
	return err
}

// Get selects a log by (id, owner).
func (r *LogRepo) Get(ctx context.Context, userID, id uuid.UUID) (*model.Log, error) {
	const q = `SELECT ` + logCols + ` FROM logs WHERE id=$1 AND user_id=$2`
	l, err := scanLog(r.q.QueryRow(ctx, q, id, userID))
	if isNoRows(err) {
		return nil, errs.ErrNotFound
	}
	return l, err
}

func logWhere(b sq.SelectBuilder, userID uuid.UUID, f model.LogFilter) sq.SelectBuilder {
	b = b.Where(sq.Expr("user_id = ?", userID))
	if f.ConnectionID != nil {
		b = b.Where(sq.Expr("connection_id = ?", *f.ConnectionID))
	}
	return b
}

// List returns one page of the owner's logs, newest first, with the unpaged total.
func (r *LogRepo) List(ctx context.Context, userID uuid.UUID, f model.LogFilter, p model.Page) ([]model.Log, int, error) {
	cq, cargs, err := logWhere(psql.Select("COUNT(*)").From("logs"), userID, f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count logs: %w", err)
	}
	var total int
	if err := r.q.QueryRow(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sel := logWhere(psql.Select(logCols).From("logs"), userID, f).OrderBy("created_at DESC", "id")
	if p.Limit > 0 {
		sel = sel.Limit(uint64(p.Limit))
	}
	if p.Offset > 0 {
		sel = sel.Offset(uint64(p.Offset))
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list logs: %w", err)
	}
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// Delete removes a log by (id, owner) and returns its former connection.
func (r *LogRepo) Delete(ctx context.Context, userID, id uuid.UUID) (*uuid.UUID, error) {
	const q = `DELETE FROM logs WHERE id=$1 AND user_id=$2 RETURNING connection_id`
	var connID *uuid.UUID
	if err := r.q.QueryRow(ctx, q, id, userID).Scan(&connID); err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return connID, nil
}

// MaxCreatedAt aggregates over the logs currently pointing at the connection.
func (r *LogRepo) MaxCreatedAt(ctx context.Context, connectionID uuid.UUID) (*time.Time, error) {
	const q = `SELECT MAX(created_at) FROM logs WHERE connection_id=$1`
	var at *time.Time
	if err := r.q.QueryRow(ctx, q, connectionID).Scan(&at); err != nil {
		return nil, err
	}
	return at, nil
}
