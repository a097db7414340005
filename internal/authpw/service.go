// Package authpw provides email/password credential operations.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ezzyraouy/smartnote-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

// ValidationError reports a rejected credential field. It keeps caller
// input problems distinguishable from storage failures.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// UserStore defines the storage interface for credential operations
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	UpdateUser(ctx context.Context, userID int64, email, passwordHash string) (store.User, error)
	DeleteUser(ctx context.Context, userID int64) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// Register creates a new user account. The password is stored only as a
// bcrypt hash.
func (s *Service) Register(ctx context.Context, email, password string) (store.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return store.User{}, &ValidationError{Reason: "email and password are required"}
	}
	if len(password) < 8 {
		return store.User{}, &ValidationError{Reason: "password must be at least 8 characters"}
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash))
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn authenticates a user. Unknown email and wrong password produce the
// same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// UpdateProfile applies a partial profile update. A nil field is left
// unchanged. A blank or whitespace-only password is ignored rather than set.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, email, password *string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}

	newEmail := user.Email
	if email != nil && strings.TrimSpace(*email) != "" && *email != user.Email {
		if _, err := s.store.GetUserByEmail(ctx, *email); err == nil {
			return store.User{}, ErrEmailTaken
		}
		newEmail = *email
	}

	newHash := user.PasswordHash
	if password != nil && strings.TrimSpace(*password) != "" {
		if len(*password) < 8 {
			return store.User{}, &ValidationError{Reason: "password must be at least 8 characters"}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			return store.User{}, fmt.Errorf("hash password: %w", err)
		}
		newHash = string(hash)
	}

	updated, err := s.store.UpdateUser(ctx, userID, newEmail, newHash)
	if err != nil {
		return store.User{}, err
	}
	return updated, nil
}

// Delete removes the account; owned notes are removed by the store cascade.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	return s.store.DeleteUser(ctx, userID)
}
