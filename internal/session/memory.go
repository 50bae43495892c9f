package session

import (
	"context"
	"sync"

	"github.com/thejerf/abtime"

	"studio/web/internal/models"
	"studio/web/internal/security"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sessions in process memory. Everything is lost on
// restart, which is acceptable for development and single-node installs
// where only a handful of staff ever log in.
type MemoryStore struct {
	opts  Options
	clock abtime.AbstractTime

	mu       sync.Mutex
	sessions map[string]models.Session
	byUser   map[string]map[string]struct{}
}

func NewMemoryStore(opts Options, clock abtime.AbstractTime) *MemoryStore {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &MemoryStore{
		opts:     opts,
		clock:    clock,
		sessions: map[string]models.Session{},
		byUser:   map[string]map[string]struct{}{},
	}
}

func (s *MemoryStore) Create(_ context.Context, identity models.Identity) (models.Session, error) {
	token, key, err := security.GenerateSessionToken()
	if err != nil {
		return models.Session{}, err
	}

	now := s.clock.Now()
	sess := models.Session{
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.ttl()),
	}

	s.mu.Lock()
	s.sessions[key] = sess
	keys, ok := s.byUser[identity.UserID]
	if !ok {
		keys = map[string]struct{}{}
		s.byUser[identity.UserID] = keys
	}
	keys[key] = struct{}{}
	s.mu.Unlock()

	sess.Token = token
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrSessionNotFound
	}
	key := security.HashSessionToken(token)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if sess.Expired(now) {
		s.deleteLocked(key, sess.Identity.UserID)
		return models.Session{}, ErrSessionNotFound
	}
	if s.opts.Sliding {
		sess.ExpiresAt = now.Add(s.opts.ttl())
		s.sessions[key] = sess
	}

	sess.Token = token
	return sess, nil
}

func (s *MemoryStore) Destroy(_ context.Context, token string) error {
	if token == "" {
		return nil
	}
	key := security.HashSessionToken(token)

	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		s.deleteLocked(key, sess.Identity.UserID)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DestroyUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.byUser[userID]
	for key := range keys {
		delete(s.sessions, key)
	}
	delete(s.byUser, userID)
	return len(keys), nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if sess.Expired(now) {
			s.deleteLocked(key, sess.Identity.UserID)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) deleteLocked(key, userID string) {
	delete(s.sessions, key)
	if keys, ok := s.byUser[userID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.byUser, userID)
		}
	}
}
