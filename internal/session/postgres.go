package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/thejerf/abtime"

	"studio/web/internal/models"
	"studio/web/internal/security"
)

var _ Store = (*PostgresStore)(nil)

// DB is satisfied by *pgxpool.Pool and pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore keeps sessions in the user_sessions table, next to the
// users they belong to. Deleting a user cascades to their sessions.
type PostgresStore struct {
	db    DB
	opts  Options
	clock abtime.AbstractTime
}

func NewPostgresStore(db DB, opts Options, clock abtime.AbstractTime) *PostgresStore {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &PostgresStore{db: db, opts: opts, clock: clock}
}

func (s *PostgresStore) Create(ctx context.Context, identity models.Identity) (models.Session, error) {
	token, digest, err := security.GenerateSessionToken()
	if err != nil {
		return models.Session{}, err
	}

	now := s.clock.Now().UTC()
	sess := models.Session{
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.ttl()),
	}

	const query = `
		INSERT INTO user_sessions (
			id, user_id, user_name, user_email, user_role, created_at, last_seen_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $6, $7
		)
	`
	if _, err := s.db.Exec(ctx, query,
		digest,
		identity.UserID,
		identity.Name,
		identity.Email,
		string(identity.Role),
		sess.CreatedAt,
		sess.ExpiresAt,
	); err != nil {
		return models.Session{}, fmt.Errorf("store session: %w", err)
	}

	sess.Token = token
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrSessionNotFound
	}
	digest := security.HashSessionToken(token)

	const query = `
		SELECT user_id, user_name, user_email, user_role, created_at, expires_at
		FROM user_sessions
		WHERE id = $1
	`
	var (
		sess models.Session
		role string
	)
	if err := s.db.QueryRow(ctx, query, digest).Scan(
		&sess.Identity.UserID,
		&sess.Identity.Name,
		&sess.Identity.Email,
		&role,
		&sess.CreatedAt,
		&sess.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	sess.Identity.Role = models.UserRole(role)

	now := s.clock.Now().UTC()
	if sess.Expired(now) {
		_, _ = s.db.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, digest)
		return models.Session{}, ErrSessionNotFound
	}

	if s.opts.Sliding {
		sess.ExpiresAt = now.Add(s.opts.ttl())
		const touch = `UPDATE user_sessions SET last_seen_at = $2, expires_at = $3 WHERE id = $1`
		if _, err := s.db.Exec(ctx, touch, digest, now, sess.ExpiresAt); err != nil {
			return models.Session{}, fmt.Errorf("renew session: %w", err)
		}
	}

	sess.Token = token
	return sess, nil
}

func (s *PostgresStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	const query = `DELETE FROM user_sessions WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, security.HashSessionToken(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DestroyUser(ctx context.Context, userID string) (int, error) {
	const query = `DELETE FROM user_sessions WHERE user_id = $1`
	cmd, err := s.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresStore) Sweep(ctx context.Context) (int, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at <= $1`
	cmd, err := s.db.Exec(ctx, query, s.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
