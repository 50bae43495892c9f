package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"

	"studio/web/internal/security"
)

var sessionRowColumns = []string{"user_id", "user_name", "user_email", "user_role", "created_at", "expires_at"}

func newPostgresStore(t *testing.T, opts Options) (*PostgresStore, pgxmock.PgxPoolIface, *abtime.ManualTime) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	clock := abtime.NewManual()
	return NewPostgresStore(mock, opts, clock), mock, clock
}

func TestPostgresStore_CreateStoresDigest(t *testing.T) {
	store, mock, _ := newPostgresStore(t, Options{TTL: time.Hour})

	mock.ExpectExec(`INSERT INTO user_sessions`).
		WithArgs(pgxmock.AnyArg(), "u1", "Jo", "jo@x.com", "user", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess, err := store.Create(context.Background(), jo)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, time.Hour, sess.ExpiresAt.Sub(sess.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock, clock := newPostgresStore(t, Options{TTL: time.Hour})
	now := clock.Now().UTC()

	mock.ExpectQuery(`SELECT user_id, user_name, user_email, user_role, created_at, expires_at`).
		WithArgs(security.HashSessionToken("tok")).
		WillReturnRows(pgxmock.NewRows(sessionRowColumns).
			AddRow("u1", "Jo", "jo@x.com", "user", now, now.Add(time.Hour)))

	got, err := store.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, jo, got.Identity)
	assert.Equal(t, "tok", got.Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUnknown(t *testing.T) {
	store, mock, _ := newPostgresStore(t, Options{})

	mock.ExpectQuery(`SELECT user_id`).
		WithArgs(security.HashSessionToken("nope")).
		WillReturnRows(pgxmock.NewRows(sessionRowColumns))

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetExpiredDeletes(t *testing.T) {
	store, mock, clock := newPostgresStore(t, Options{})
	now := clock.Now().UTC()
	digest := security.HashSessionToken("old")

	mock.ExpectQuery(`SELECT user_id`).
		WithArgs(digest).
		WillReturnRows(pgxmock.NewRows(sessionRowColumns).
			AddRow("u1", "Jo", "jo@x.com", "user", now.Add(-2*time.Hour), now))
	mock.ExpectExec(`DELETE FROM user_sessions WHERE id`).
		WithArgs(digest).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	_, err := store.Get(context.Background(), "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SlidingRenews(t *testing.T) {
	store, mock, clock := newPostgresStore(t, Options{TTL: time.Hour, Sliding: true})
	now := clock.Now().UTC()
	digest := security.HashSessionToken("tok")

	mock.ExpectQuery(`SELECT user_id`).
		WithArgs(digest).
		WillReturnRows(pgxmock.NewRows(sessionRowColumns).
			AddRow("u1", "Jo", "jo@x.com", "user", now.Add(-30*time.Minute), now.Add(time.Minute)))
	mock.ExpectExec(`UPDATE user_sessions SET last_seen_at`).
		WithArgs(digest, now, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	got, err := store.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), got.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DestroyAndDestroyUser(t *testing.T) {
	store, mock, _ := newPostgresStore(t, Options{})

	mock.ExpectExec(`DELETE FROM user_sessions WHERE id`).
		WithArgs(security.HashSessionToken("tok")).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM user_sessions WHERE user_id`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.Destroy(context.Background(), "tok"))
	require.NoError(t, store.Destroy(context.Background(), ""))

	n, err := store.DestroyUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Sweep(t *testing.T) {
	store, mock, _ := newPostgresStore(t, Options{})

	mock.ExpectExec(`DELETE FROM user_sessions WHERE expires_at`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM user_sessions WHERE expires_at`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("conn closed"))

	n, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Sweep(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
