package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var userColNames = []string{"id", "email", "name", "is_active", "is_onboarded", "created_at"}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db.Pool)
	ctx := context.Background()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "ann@example.com", Name: "Ann", IsActive: true}
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO users \(id, email, name, is_active, is_onboarded\) VALUES \(\$1, \$2, \$3, \$4, \$5\) RETURNING created_at`).
		WithArgs(u.ID, u.Email, u.Name, true, false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	require.NoError(t, r.Create(ctx, u))
	require.Equal(t, now, u.CreatedAt)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(u.ID, u.Email, u.Name, true, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db.Pool)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, email, name, is_active, is_onboarded, created_at FROM users WHERE email=\$1`).
		WithArgs("ann@example.com").
		WillReturnRows(pgxmock.NewRows(userColNames).AddRow(id, "ann@example.com", "Ann", true, false, time.Now()))
	u, err := r.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)

	mock.ExpectQuery(`SELECT .* FROM users WHERE email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateProfile(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db.Pool)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	name := "Ann B"
	onboarded := true

	mock.ExpectQuery(`UPDATE users SET is_onboarded = \$1, name = \$2 WHERE id = \$3 RETURNING id, email, name, is_active, is_onboarded, created_at`).
		WithArgs(true, "Ann B", id).
		WillReturnRows(pgxmock.NewRows(userColNames).AddRow(id, "ann@example.com", "Ann B", true, true, time.Now()))
	u, err := r.UpdateProfile(ctx, id, &name, &onboarded)
	require.NoError(t, err)
	require.Equal(t, "Ann B", u.Name)
	require.True(t, u.IsOnboarded)

	// nothing to change: plain read
	mock.ExpectQuery(`SELECT .* FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.UpdateProfile(ctx, id, nil, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
