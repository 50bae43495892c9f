package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studio/web/internal/models"
	"studio/web/internal/session"
)

// UserService backs the admin panel's user management and admin seeding.
type UserService struct {
	users    UserStore
	sessions session.Store
	hasher   PasswordHasher
	log      zerolog.Logger
}

func NewUserService(users UserStore, sessions session.Store, hasher PasswordHasher, log zerolog.Logger) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		log:      log,
	}
}

func (s *UserService) List(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	users, err := s.users.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", ErrStoreUnavailable, err)
	}
	return users, nil
}

func (s *UserService) Count(ctx context.Context) (int, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count users: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("%w: get user: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}

type CreateUserInput struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Role     string `validate:"omitempty,oneof=user admin"`
}

// Create adds a user on behalf of an admin, who may choose any role.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = models.NormalizeEmail(input.Email)
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	if err := validateStruct(input, ""); err != nil {
		return models.User{}, err
	}

	role, err := models.ParseUserRole(input.Role)
	if err != nil {
		return models.User{}, &ValidationError{Field: "Role", Message: fieldMessages["Role.oneof"]}
	}

	user, err := createUser(ctx, s.users, s.hasher, input.Name, input.Email, input.Password, role)
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(role)).Msg("user created by admin")
	return user, nil
}

type UpdateUserInput struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
	Role  string `validate:"required,oneof=user admin"`
	// Password is optional; a non-empty value replaces the stored hash.
	Password string `validate:"omitempty,min=6"`
}

func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = models.NormalizeEmail(input.Email)
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	if err := validateStruct(input, ""); err != nil {
		return models.User{}, err
	}

	role, err := models.ParseUserRole(input.Role)
	if err != nil {
		return models.User{}, &ValidationError{Field: "Role", Message: fieldMessages["Role.oneof"]}
	}

	update := models.UserUpdate{
		Name:  &input.Name,
		Email: &input.Email,
		Role:  &role,
	}
	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		update.PasswordHash = hash
	}

	user, err := s.users.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrDuplicateEmail) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("%w: update user: %v", ErrStoreUnavailable, err)
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Bool("password_changed", update.PasswordHash != nil).
		Msg("user updated by admin")
	return user, nil
}

// Delete removes the user and revokes every session they hold. actorID is
// the admin performing the deletion.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: delete user: %v", ErrStoreUnavailable, err)
	}

	revoked, err := s.sessions.DestroyUser(ctx, id)
	if err != nil {
		// Re-validated routes reject the orphaned sessions anyway.
		s.log.Warn().Err(err).Str("user_id", id).Msg("revoke sessions failed")
	}

	s.log.Info().Str("user_id", id).Int("sessions_revoked", revoked).Msg("user deleted by admin")
	return nil
}

// EnsureAdmin creates an admin account unless the email is already taken.
// It reports whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	_, err := s.Create(ctx, CreateUserInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     string(models.UserRoleAdmin),
	})
	if errors.Is(err, ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
