package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var logColNames = []string{"id", "user_id", "connection_id", "type", "notes", "tags", "created_at"}

func TestLogRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLogRepo(db.Pool)
	connID := uuid.Must(uuid.NewV4())
	l := &model.Log{
		ID: uuid.Must(uuid.NewV4()), UserID: uuid.Must(uuid.NewV4()), ConnectionID: &connID,
		Type: "call", Notes: "Caught up", Tags: []string{"Call"},
		CreatedAt: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO logs \(id, user_id, connection_id, type, notes, tags, created_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs(l.ID, l.UserID, &connID, "call", "Caught up", []string{"Call"}, l.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), l))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepo_Get_GeneralNote(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLogRepo(db.Pool)
	id := uuid.Must(uuid.NewV4())
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, user_id, connection_id, type, notes, tags, created_at FROM logs WHERE id=\$1 AND user_id=\$2`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows(logColNames).AddRow(id, owner, nil, "interaction", "note", []string{}, time.Now()))
	l, err := r.Get(context.Background(), owner, id)
	require.NoError(t, err)
	require.Nil(t, l.ConnectionID)

	mock.ExpectQuery(`FROM logs WHERE id=\$1 AND user_id=\$2`).
		WithArgs(id, owner).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(context.Background(), owner, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepo_List_ByConnection(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLogRepo(db.Pool)
	owner := uuid.Must(uuid.NewV4())
	connID := uuid.Must(uuid.NewV4())
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM logs WHERE user_id = $1 AND connection_id = $2`)).
		WithArgs(owner, connID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM logs WHERE user_id = $1 AND connection_id = $2 ORDER BY created_at DESC, id LIMIT 50`)).
		WithArgs(owner, connID).
		WillReturnRows(pgxmock.NewRows(logColNames).
			AddRow(uuid.Must(uuid.NewV4()), owner, &connID, "call", "b", []string{}, newer).
			AddRow(uuid.Must(uuid.NewV4()), owner, &connID, "call", "a", []string{}, older))

	items, total, err := r.List(context.Background(), owner, model.LogFilter{ConnectionID: &connID}, model.Page{Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 2)
	require.Equal(t, newer, items[0].CreatedAt)
	require.Equal(t, connID, *items[1].ConnectionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepo_Delete_ReturnsConnection(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLogRepo(db.Pool)
	owner := uuid.Must(uuid.NewV4())
	id := uuid.Must(uuid.NewV4())
	connID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`DELETE FROM logs WHERE id=\$1 AND user_id=\$2 RETURNING connection_id`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{"connection_id"}).AddRow(&connID))
	got, err := r.Delete(context.Background(), owner, id)
	require.NoError(t, err)
	require.Equal(t, connID, *got)

	mock.ExpectQuery(`DELETE FROM logs`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{"connection_id"}).AddRow(nil))
	got, err = r.Delete(context.Background(), owner, id)
	require.NoError(t, err)
	require.Nil(t, got)

	mock.ExpectQuery(`DELETE FROM logs`).
		WithArgs(id, owner).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Delete(context.Background(), owner, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepo_MaxCreatedAt(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLogRepo(db.Pool)
	connID := uuid.Must(uuid.NewV4())
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT MAX\(created_at\) FROM logs WHERE connection_id=\$1`).
		WithArgs(connID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&at))
	got, err := r.MaxCreatedAt(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, at, *got)

	mock.ExpectQuery(`SELECT MAX\(created_at\) FROM logs`).
		WithArgs(connID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(nil))
	got, err = r.MaxCreatedAt(context.Background(), connID)
	require.NoError(t, err)
	require.Nil(t, got)

	mock.ExpectQuery(`SELECT MAX\(created_at\) FROM logs`).
		WithArgs(connID).
		WillReturnError(errors.New("conn reset"))
	_, err = r.MaxCreatedAt(context.Background(), connID)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
