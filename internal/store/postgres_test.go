package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, ""), mock
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select value from "kv_store" where key = \$1`).
		WithArgs("schemati_projects").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))

	v, ok, err := s.Get(context.Background(), "schemati_projects")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select value from "kv_store"`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	v, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestPostgresStore_GetError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`select value from "kv_store"`).
		WithArgs("k").
		WillReturnError(errors.New("connection reset"))

	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresStore_SetUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`insert into "kv_store" \(key, value, updated_at\)`).
		WithArgs("schemati_autosave", []byte("true")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Set(context.Background(), "schemati_autosave", []byte("true")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`delete from "kv_store" where key = \$1`).
		WithArgs("schemati_current_project").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), "schemati_current_project"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchemaQuotesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db, `odd"name`)
	mock.ExpectExec(`create table if not exists "odd""name"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
