package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ezzyraouy/smartnote-api/internal/auth"
	"github.com/ezzyraouy/smartnote-api/internal/authpw"
	"github.com/ezzyraouy/smartnote-api/internal/config"
	"github.com/ezzyraouy/smartnote-api/internal/notes"
	"github.com/ezzyraouy/smartnote-api/internal/search"
	"github.com/ezzyraouy/smartnote-api/internal/store"
	"github.com/google/uuid"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Email        string
	ExpiresAt    time.Time
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (int64, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	users    *authpw.Service
	notes    *notes.Service
	sessions sessionStore
	db       pinger
	mirror   search.Mirror
}

func New(cfg config.Config, users *authpw.Service, noteService *notes.Service, sessions sessionStore, db pinger, mirror search.Mirror) *Service {
	return &Service{
		cfg:      cfg,
		users:    users,
		notes:    noteService,
		sessions: sessions,
		db:       db,
		mirror:   mirror,
	}
}

func (s *Service) Users() *authpw.Service { return s.users }
func (s *Service) Notes() *notes.Service  { return s.notes }

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SearchHealthy reports the mirror's last known reachability.
func (s *Service) SearchHealthy() bool {
	return s.mirror.Healthy()
}

// Login verifies credentials and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke rotated refresh token: %w", err)
	}
	return session, nil
}

// Logout revokes a refresh token. Revoking an unknown token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// UserFromToken resolves the owner identity from a verified bearer token.
func (s *Service) UserFromToken(token string) (int64, error) {
	userID, err := auth.VerifyToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return 0, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Token expired", nil)
		}
		return 0, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return userID, nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	accessToken, expiresAt, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken := uuid.NewString()
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Email:        user.Email,
		ExpiresAt:    expiresAt,
	}, nil
}
