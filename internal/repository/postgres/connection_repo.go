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

// ConnectionRepo implements ConnectionRepository using PostgreSQL.
type ConnectionRepo struct{ q Querier }

// NewConnectionRepo constructs a connection repository over a pool or a transaction.
func NewConnectionRepo(q Querier) *ConnectionRepo { return &ConnectionRepo{q: q} }

const connectionCols = `id, user_id, name, role, company, location, industry, how_met, notes, goals, linkedin, email, frequency, last_contact, tags, created_at`

func scanConnection(row pgx.Row) (*model.Connection, error) {
	var c model.Connection
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Role, &c.Company, &c.Location, &c.Industry, &c.HowMet,
		&c.Notes, &c.Goals, &c.LinkedIn, &c.Email, &c.Frequency, &c.LastContact, &c.Tags, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

// Create inserts a connection; CreatedAt is filled from the database.
func (r *ConnectionRepo) Create(ctx context.Context, c *model.Connection) error {
	const q = `
INSERT INTO connections (id, user_id, name, role, company, location, industry, how_met, notes, goals, linkedin, email, frequency, last_contact, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING created_at`
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	err := r.q.QueryRow(ctx, q,
		c.ID, c.UserID, c.Name, c.Role, c.Company, c.Location, c.Industry, c.HowMet,
		c.Notes, c.Goals, c.LinkedIn, c.Email, c.Frequency, c.LastContact, tags,
	).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a connection by (id, owner).
func (r *ConnectionRepo) Get(ctx context.Context, userID, id uuid.UUID) (*model.Connection, error) {
	const q = `SELECT ` + connectionCols + ` FROM connections WHERE id=$1 AND user_id=$2`
	c, err := scanConnection(r.q.QueryRow(ctx, q, id, userID))
	if isNoRows(err) {
		return nil, errs.ErrNotFound
	}
	return c, err
}

// GetForUpdate selects and locks a connection by (id, owner).
func (r *ConnectionRepo) GetForUpdate(ctx context.Context, userID, id uuid.UUID) (*model.Connection, error) {
	const q = `SELECT ` + connectionCols + ` FROM connections WHERE id=$1 AND user_id=$2 FOR UPDATE`
	c, err := scanConnection(r.q.QueryRow(ctx, q, id, userID))
	if isNoRows(err) {
		return nil, errs.ErrNotFound
	}
	return c, err
}

func connectionWhere(b sq.SelectBuilder, userID uuid.UUID, f model.ConnectionFilter) sq.SelectBuilder {
	b = b.Where(sq.Expr("user_id = ?", userID))
	if f.Tag != "" {
		b = b.Where(sq.Expr("? = ANY(tags)", f.Tag))
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		b = b.Where(sq.Expr("(name ILIKE ? OR company ILIKE ? OR role ILIKE ?)", like, like, like))
	}
	return b
}

// List returns one page of the owner's connections, newest first, with the unpaged total.
func (r *ConnectionRepo) List(
	ctx context.Context, userID uuid.UUID, f model.ConnectionFilter, p model.Page,
) ([]model.Connection, int, error) {
	cq, cargs, err := connectionWhere(psql.Select("COUNT(*)").From("connections"), userID, f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count connections: %w", err)
	}
	var total int
	if err := r.q.QueryRow(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sel := connectionWhere(psql.Select(connectionCols).From("connections"), userID, f).
		OrderBy("created_at DESC", "id")
	if p.Limit > 0 {
		sel = sel.Limit(uint64(p.Limit))
	}
	if p.Offset > 0 {
		sel = sel.Offset(uint64(p.Offset))
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list connections: %w", err)
	}
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// Update applies a partial update and returns the stored row.
func (r *ConnectionRepo) Update(
	ctx context.Context, userID, id uuid.UUID, p model.ConnectionPatch,
) (*model.Connection, error) {
	set := patchColumns(p)
	if len(set) == 0 {
		return r.Get(ctx, userID, id)
	}
	q, args, err := psql.Update("connections").
		SetMap(set).
		Where(sq.Expr("id = ?", id)).
		Where(sq.Expr("user_id = ?", userID)).
		Suffix("RETURNING " + connectionCols).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update connections: %w", err)
	}
	c, err := scanConnection(r.q.QueryRow(ctx, q, args...))
	if isNoRows(err) {
		return nil, errs.ErrNotFound
	}
	return c, err
}

func patchColumns(p model.ConnectionPatch) map[string]any {
	set := map[string]any{}
	str := func(col string, v *string) {
		if v != nil {
			set[col] = *v
		}
	}
	str("name", p.Name)
	str("role", p.Role)
	str("company", p.Company)
	str("location", p.Location)
	str("industry", p.Industry)
	str("how_met", p.HowMet)
	str("notes", p.Notes)
	str("goals", p.Goals)
	str("linkedin", p.LinkedIn)
	str("email", p.Email)
	if p.Frequency != nil {
		set["frequency"] = *p.Frequency
	}
	if p.Tags != nil {
		tags := *p.Tags
		if tags == nil {
			tags = []string{}
		}
		set["tags"] = tags
	}
	switch {
	case p.LastContact != nil:
		set["last_contact"] = p.LastContact.UTC()
	case p.ClearLastContact:
		set["last_contact"] = nil
	}
	return set
}

// Delete removes a connection by (id, owner). Its logs are kept with a null connection.
func (r *ConnectionRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const q = `DELETE FROM connections WHERE id=$1 AND user_id=$2`
	tag, err := r.q.Exec(ctx, q, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AdvanceLastContact moves last_contact forward only.
func (r *ConnectionRepo) AdvanceLastContact(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `
UPDATE connections SET last_contact=$2
WHERE id=$1 AND (last_contact IS NULL OR last_contact < $2)`
	tag, err := r.q.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetLastContact overwrites last_contact.
func (r *ConnectionRepo) SetLastContact(ctx context.Context, id uuid.UUID, at *time.Time) error {
	const q = `UPDATE connections SET last_contact=$2 WHERE id=$1`
	_, err := r.q.Exec(ctx, q, id, at)
	return err
}
