package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/peopleops/hrportal/internal/errors"
	"github.com/peopleops/hrportal/internal/ports"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*SlotStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSlotStore(db, SlotStoreOptions{TTL: time.Hour, Now: func() time.Time { return fixedNow }}), mock
}

func TestSlotStore_GetSlot(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM credential_slots")).
		WithArgs("sid-1", ports.SlotPrimary, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("tok"))

	v, ok, err := store.GetSlot(context.Background(), "sid-1", ports.SlotPrimary)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotStore_GetSlot_Missing(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM credential_slots")).
		WithArgs("sid-1", ports.SlotSSO, fixedNow).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.GetSlot(context.Background(), "sid-1", ports.SlotSSO)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotStore_GetSlot_MissingSchema(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM credential_slots")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable})

	_, _, err := store.GetSlot(context.Background(), "sid-1", ports.SlotPrimary)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Contains(t, err.Error(), "run migrations")
}

func TestSlotStore_SetSlot_Upserts(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credential_slots")).
		WithArgs("sid-1", ports.SlotPrimary, "tok", fixedNow.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetSlot(context.Background(), "sid-1", ports.SlotPrimary, "tok"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotStore_SetSlot_RequiresSID(t *testing.T) {
	store, _ := newStore(t)
	err := store.SetSlot(context.Background(), "", ports.SlotPrimary, "tok")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSlotStore_ClearSlot_OnlyTouchesOneSlot(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM credential_slots WHERE sid = $1 AND slot = $2")).
		WithArgs("sid-1", ports.SlotSSO).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.ClearSlot(context.Background(), "sid-1", ports.SlotSSO))
	require.NoError(t, store.ClearSlot(context.Background(), "", ports.SlotSSO))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotStore_PurgeExpired(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM credential_slots WHERE expires_at <= $1")).
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotStore_PurgeExpired_ConnectionFailure(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM credential_slots")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ConnectionFailure})

	_, err := store.PurgeExpired(context.Background())
	assert.True(t, apperrors.IsUnavailable(err))
}
