package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ q Querier }

// NewUserRepo constructs a user repository.
func NewUserRepo(q Querier) *UserRepo { return &UserRepo{q: q} }

const userCols = `id, email, name, is_active, is_onboarded, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, name, is_active, is_onboarded)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.q.QueryRow(ctx, q, u.ID, u.Email, u.Name, u.IsActive, u.IsOnboarded).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return r.one(ctx, q, id)
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email=$1`
	return r.one(ctx, q, email)
}

// UpdateProfile changes name and/or the onboarding flag.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name *string, onboarded *bool) (*model.User, error) {
	set := map[string]any{}
	if name != nil {
		set["name"] = *name
	}
	if onboarded != nil {
		set["is_onboarded"] = *onboarded
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}
	q, args, err := psql.Update("users").
		SetMap(set).
		Where(sq.Expr("id = ?", id)).
		Suffix("RETURNING " + userCols).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update users: %w", err)
	}
	return r.one(ctx, q, args...)
}

func (r *UserRepo) one(ctx context.Context, q string, args ...any) (*model.User, error) {
	var u model.User
	err := r.q.QueryRow(ctx, q, args...).
		Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.IsOnboarded, &u.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
