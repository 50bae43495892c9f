package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"studio/web/internal/ids"
	"studio/web/internal/models"
	"studio/web/internal/session"
)

// UserStore is the credential store as seen by the services.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context, limit int) ([]models.User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, id string, update models.UserUpdate) (models.User, error)
	Delete(ctx context.Context, id string) error
}

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, encodedHash []byte) bool
}

// ResolveMode selects how much a session token is trusted.
type ResolveMode int

const (
	// ResolveSnapshot trusts the identity captured at login.
	ResolveSnapshot ResolveMode = iota
	// ResolveRevalidated re-reads the user so role changes and deletions
	// since login take effect.
	ResolveRevalidated
)

const storeRetryDelay = 50 * time.Millisecond

type AuthService struct {
	users    UserStore
	sessions session.Store
	hasher   PasswordHasher
	log      zerolog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(users UserStore, sessions session.Store, hasher PasswordHasher, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		log:      log,
	}
}

type RegisterInput struct {
	Name            string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// Register creates a user with the default role. It does not open a
// session; the caller sends the new user through the login form.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = models.NormalizeEmail(input.Email)
	if err := validateStruct(input, ""); err != nil {
		return models.User{}, err
	}

	user, err := createUser(ctx, s.users, s.hasher, input.Name, input.Email, input.Password, models.UserRoleUser)
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type LoginResult struct {
	Session models.Session
	User    models.User
}

const loginShapeMessage = "Please provide valid email and password"

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	input.Email = models.NormalizeEmail(input.Email)
	if strings.TrimSpace(input.Password) == "" {
		input.Password = ""
	}
	if err := validateStruct(input, loginShapeMessage); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn the same work as a real check so response time does not
			// reveal whether the email is registered.
			s.hasher.Verify(input.Password, s.dummy())
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("%w: find user: %v", ErrStoreUnavailable, err)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, user.Identity())
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: create session: %v", ErrStoreUnavailable, err)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("login succeeded")
	return LoginResult{Session: sess, User: user}, nil
}

// Logout destroys the session behind token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return fmt.Errorf("%w: destroy session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Resolve turns a session token into an identity. Store failures are retried
// once before surfacing as ErrStoreUnavailable.
func (s *AuthService) Resolve(ctx context.Context, token string, mode ResolveMode) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, ErrUnauthenticated
	}

	var sess models.Session
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.sessions.Get(ctx, token)
		return err
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return models.Identity{}, ErrUnauthenticated
		}
		return models.Identity{}, fmt.Errorf("%w: get session: %v", ErrStoreUnavailable, err)
	}

	if mode == ResolveSnapshot {
		return sess.Identity, nil
	}

	var user models.User
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByID(ctx, sess.Identity.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := s.sessions.Destroy(ctx, token); err != nil {
				s.log.Warn().Err(err).Str("user_id", sess.Identity.UserID).Msg("destroy stale session failed")
			}
			return models.Identity{}, ErrUnauthenticated
		}
		return models.Identity{}, fmt.Errorf("%w: get user: %v", ErrStoreUnavailable, err)
	}

	if user.Role != sess.Identity.Role {
		s.log.Debug().
			Str("user_id", user.ID).
			Str("session_role", string(sess.Identity.Role)).
			Str("current_role", string(user.Role)).
			Msg("role changed since login")
	}
	return user.Identity(), nil
}

// Authorize permits the request only when identity holds the required role.
func Authorize(identity *models.Identity, required models.UserRole) error {
	if identity == nil || identity.UserID == "" {
		return ErrUnauthenticated
	}
	switch required {
	case models.UserRoleUser, models.UserRoleAdmin:
		if identity.Role == required {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

func (s *AuthService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(storeRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, ErrUserNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(ids.New())
		if err != nil {
			s.log.Error().Err(err).Msg("dummy hash failed")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// createUser is shared by self-registration and the admin panel so every
// path hashes the password exactly once.
func createUser(ctx context.Context, users UserStore, hasher PasswordHasher, name, email, password string, role models.UserRole) (models.User, error) {
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return models.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrUserNotFound) {
		return models.User{}, fmt.Errorf("%w: find user: %v", ErrStoreUnavailable, err)
	}

	passwordHash, err := hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := users.Create(ctx, models.User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, fmt.Errorf("%w: create user: %v", ErrStoreUnavailable, err)
	}
	return created, nil
}
