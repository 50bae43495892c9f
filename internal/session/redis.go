package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"studio/web/internal/models"
	"studio/web/internal/security"
)

var _ Store = (*RedisStore)(nil)

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "session:user:"
)

// RedisStore keeps each session under its own key with a native TTL, plus a
// per-user set of session digests used for revocation.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts}
}

func sessionKey(digest string) string {
	return sessionKeyPrefix + digest
}

func userIndexKey(userID string) string {
	return userIndexPrefix + userID
}

func (s *RedisStore) Create(ctx context.Context, identity models.Identity) (models.Session, error) {
	token, digest, err := security.GenerateSessionToken()
	if err != nil {
		return models.Session{}, err
	}

	ttl := s.opts.ttl()
	now := time.Now().UTC()
	sess := models.Session{
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return models.Session{}, fmt.Errorf("encode session: %w", err)
	}

	indexKey := userIndexKey(identity.UserID)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(digest), payload, ttl)
		pipe.SAdd(ctx, indexKey, digest)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	}); err != nil {
		return models.Session{}, fmt.Errorf("store session: %w", err)
	}

	sess.Token = token
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrSessionNotFound
	}
	digest := security.HashSessionToken(token)

	sess, err := s.load(ctx, digest)
	if err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	if sess.Expired(now) {
		_ = s.delete(ctx, digest, sess.Identity.UserID)
		return models.Session{}, ErrSessionNotFound
	}

	if s.opts.Sliding {
		ttl := s.opts.ttl()
		sess.ExpiresAt = now.Add(ttl)
		payload, err := json.Marshal(sess)
		if err != nil {
			return models.Session{}, fmt.Errorf("encode session: %w", err)
		}
		// XX so a concurrent Destroy is not undone.
		if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetXX(ctx, sessionKey(digest), payload, ttl)
			pipe.Expire(ctx, userIndexKey(sess.Identity.UserID), ttl)
			return nil
		}); err != nil {
			return models.Session{}, fmt.Errorf("renew session: %w", err)
		}
	}

	sess.Token = token
	return sess, nil
}

func (s *RedisStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	digest := security.HashSessionToken(token)

	sess, err := s.load(ctx, digest)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.delete(ctx, digest, sess.Identity.UserID)
}

func (s *RedisStore) DestroyUser(ctx context.Context, userID string) (int, error) {
	indexKey := userIndexKey(userID)
	digests, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}

	keys := make([]string, 0, len(digests)+1)
	for _, digest := range digests {
		keys = append(keys, sessionKey(digest))
	}

	removed := 0
	if len(keys) > 0 {
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("delete user sessions: %w", err)
		}
		removed = int(n)
	}
	if err := s.client.Del(ctx, indexKey).Err(); err != nil {
		return removed, fmt.Errorf("delete user index: %w", err)
	}
	return removed, nil
}

// Sweep drops index entries whose session key has already expired. The
// session keys themselves are expired by Redis.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, userIndexPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		digests, err := s.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return removed, fmt.Errorf("list %s: %w", indexKey, err)
		}
		for _, digest := range digests {
			exists, err := s.client.Exists(ctx, sessionKey(digest)).Result()
			if err != nil {
				return removed, fmt.Errorf("check session: %w", err)
			}
			if exists == 0 {
				if err := s.client.SRem(ctx, indexKey, digest).Err(); err != nil {
					return removed, fmt.Errorf("prune %s: %w", indexKey, err)
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan user indexes: %w", err)
	}
	return removed, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) load(ctx context.Context, digest string) (models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// An unreadable record can never authenticate anyone.
		_ = s.client.Del(ctx, sessionKey(digest)).Err()
		return models.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *RedisStore) delete(ctx context.Context, digest, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(digest))
		if strings.TrimSpace(userID) != "" {
			pipe.SRem(ctx, userIndexKey(userID), digest)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
