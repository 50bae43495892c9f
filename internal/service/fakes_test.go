package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/thejerf/abtime"

	"studio/web/internal/models"
	"studio/web/internal/security"
	"studio/web/internal/session"
)

var errBoom = errors.New("boom")

// memoryUsers is an in-memory UserStore with failure injection.
type memoryUsers struct {
	mu    sync.Mutex
	byID  map[string]models.User
	calls int

	// failGetByID makes the next n GetByID calls fail with errBoom.
	failGetByID int
	failAll     error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]models.User{}}
}

func (m *memoryUsers) Create(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll != nil {
		return models.User{}, m.failAll
	}
	user.Email = models.NormalizeEmail(user.Email)
	for _, u := range m.byID {
		if u.Email == user.Email {
			return models.User{}, ErrDuplicateEmail
		}
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll != nil {
		return models.User{}, m.failAll
	}
	email = models.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAll != nil {
		return models.User{}, m.failAll
	}
	if m.failGetByID > 0 {
		m.failGetByID--
		return models.User{}, errBoom
	}
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsers) List(_ context.Context, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	out := make([]models.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return len(m.byID), nil
}

func (m *memoryUsers) Update(_ context.Context, id string, update models.UserUpdate) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		email := models.NormalizeEmail(*update.Email)
		for otherID, other := range m.byID {
			if otherID != id && other.Email == email {
				return models.User{}, ErrDuplicateEmail
			}
		}
		u.Email = email
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if len(update.PasswordHash) > 0 {
		u.PasswordHash = update.PasswordHash
	}
	m.byID[id] = u
	return u, nil
}

func (m *memoryUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.byID[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memoryUsers) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// flakySessions fails the next failGet Get calls before delegating.
type flakySessions struct {
	session.Store
	failGet int
}

func (f *flakySessions) Get(ctx context.Context, token string) (models.Session, error) {
	if f.failGet > 0 {
		f.failGet--
		return models.Session{}, errBoom
	}
	return f.Store.Get(ctx, token)
}

type fixture struct {
	users    *memoryUsers
	sessions *session.MemoryStore
	clock    *abtime.ManualTime
	hasher   *security.PasswordHasher
	auth     *AuthService
	admin    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := abtime.NewManual()
	users := newMemoryUsers()
	sessions := session.NewMemoryStore(session.Options{}, clock)
	hasher := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	log := zerolog.Nop()
	return &fixture{
		users:    users,
		sessions: sessions,
		clock:    clock,
		hasher:   hasher,
		auth:     NewAuthService(users, sessions, hasher, log),
		admin:    NewUserService(users, sessions, hasher, log),
	}
}
