package postgres

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ariya-Dice/tansoo/pkg/database"
	"github.com/Ariya-Dice/tansoo/pkg/logger"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestSlot_GetFound(t *testing.T) {
	mock := newMock(t)
	s := New(mock)

	mock.ExpectQuery(regexp.QuoteMeta(getSQL)).
		WithArgs("cart:sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(`{"items":[]}`))

	v, found, err := s.Get(context.Background(), "cart:sess-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"items":[]}`, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlot_GetMissing(t *testing.T) {
	mock := newMock(t)
	s := New(mock)

	mock.ExpectQuery(regexp.QuoteMeta(getSQL)).
		WithArgs("cart:none").
		WillReturnError(pgx.ErrNoRows)

	_, found, err := s.Get(context.Background(), "cart:none")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlot_GetError(t *testing.T) {
	mock := newMock(t)
	s := New(mock)

	mock.ExpectQuery(regexp.QuoteMeta(getSQL)).
		WithArgs("cart:x").
		WillReturnError(errors.New("connection reset by peer"))

	_, _, err := s.Get(context.Background(), "cart:x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select slot cart:x")
}

func TestSlot_SetUpserts(t *testing.T) {
	mock := newMock(t)
	s := New(mock)

	mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
		WithArgs("cart:sess-1", `{"items":[]}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "cart:sess-1", `{"items":[]}`))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlot_SetError(t *testing.T) {
	mock := newMock(t)
	s := New(mock)

	mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
		WithArgs("cart:sess-1", "v").
		WillReturnError(errors.New("read-only transaction"))

	err := s.Set(context.Background(), "cart:sess-1", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert slot")
}

func TestSlot_Delete(t *testing.T) {
	mock := newMock(t)
	s := New(mock)

	mock.ExpectExec(regexp.QuoteMeta(deleteSQL)).
		WithArgs("cart:sess-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.Delete(context.Background(), "cart:sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlot_PurgeOlderThan(t *testing.T) {
	mock := newMock(t)
	s := New(mock)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(purgeSQL)).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(Migrations(), "*.up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_cart_slots.up.sql"}, names)

	body, err := fs.ReadFile(Migrations(), names[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS cart_slots")
}

func TestMigrate(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_create_cart_slots.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cart_slots").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_create_cart_slots.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), mock, logger.Discard()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
