// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, token refresh and logout.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

const (
	maxUserNameLen = 64
	minPasswordLen = 8
	maxPasswordLen = 256
)

// UserService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint tokens
// - Refresh: rotate a refresh token into a new pair
// - Logout: revoke the tokens of the current session
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.Hasher
	issuer      *auth.Issuer
	metrics     *metrics.Metrics
	logger      logging.Logger
}

func NewUserService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	hasher *cryptox.Hasher,
	issuer *auth.Issuer,
	mt *metrics.Metrics,
	l logging.Logger,
) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		issuer:      issuer,
		metrics:     mt,
		logger:      l.With("module", "user_service"),
	}
}

// Register creates an active account with the user role.
func (s *UserService) Register(ctx context.Context, userName, password string) (*models.User, error) {
	if err := validateUserName(userName); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	db, err := s.dbtx(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(db).Create(ctx, &models.User{
		UserName:     userName,
		PasswordHash: hash,
		Role:         string(auth.RoleUser),
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials and issues a new token pair. Unknown users,
// wrong passwords and inactive accounts all yield ErrorUnauthorized, and an
// unknown user still pays for one hash verification.
func (s *UserService) Login(ctx context.Context, userName, password string) (auth.TokenPair, error) {
	db, err := s.dbtx(ctx)
	if err != nil {
		return auth.TokenPair{}, err
	}

	user, err := s.repomanager.Users(db).GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			return auth.TokenPair{}, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return auth.TokenPair{}, common.ErrorInternal
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash is unreadable", "user_id", user.ID, "error", err)
		return auth.TokenPair{}, common.ErrorInternal
	}
	if !ok || !user.IsActive {
		return auth.TokenPair{}, common.ErrorUnauthorized
	}

	pair, err := s.issuer.Issue(auth.Seed{Subject: user.ID, Role: auth.Role(user.Role)})
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "user_id", user.ID, "error", err)
		return auth.TokenPair{}, common.ErrorInternal
	}

	s.metrics.ObserveIssued("login")
	return pair, nil
}

// Refresh redeems a refresh token. The account behind the token must still
// exist and be active; the new pair carries the role stored for it now.
// Token failures are *auth.Error values, a missing or disabled account is
// ErrorUnauthorized.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	pair, err := s.issuer.RefreshWith(ctx, refreshToken, s.currentAccount)
	if err != nil {
		return auth.TokenPair{}, err
	}
	s.metrics.ObserveIssued("refresh")
	return pair, nil
}

// currentAccount reloads the user a refresh token was issued to.
func (s *UserService) currentAccount(ctx context.Context, p auth.Principal) (auth.Seed, error) {
	db, err := s.dbtx(ctx)
	if err != nil {
		return auth.Seed{}, err
	}

	user, err := s.repomanager.Users(db).GetByID(ctx, p.Subject)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		s.logger.Info(ctx, "refresh for unknown account", "user_id", p.Subject)
		return auth.Seed{}, common.ErrorUnauthorized
	case err != nil:
		s.logger.Error(ctx, "user lookup failed", "user_id", p.Subject, "error", err)
		return auth.Seed{}, common.ErrorInternal
	case !user.IsActive:
		s.logger.Info(ctx, "refresh for disabled account", "user_id", p.Subject)
		return auth.Seed{}, common.ErrorUnauthorized
	}

	return auth.Seed{Subject: user.ID, Role: auth.Role(user.Role)}, nil
}

// Logout revokes the caller's access token and, if given, its refresh token.
func (s *UserService) Logout(ctx context.Context, access auth.Principal, refreshToken string) error {
	return s.issuer.LogoutSession(ctx, access, refreshToken)
}

// SetActive enables or disables an account. Disabling does not revoke
// tokens already issued; it only blocks future logins.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	db, err := s.dbtx(ctx)
	if err != nil {
		return err
	}
	if err := s.repomanager.Users(db).SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error updating user: %w", err)
	}
	return nil
}

// dbtx returns the request's unit of work when one is open, the pool
// otherwise.
func (s *UserService) dbtx(ctx context.Context) (dbx.DBTX, error) {
	if sess, ok := dbx.SessionFromContext(ctx); ok {
		return sess.Tx()
	}
	return s.db, nil
}

func validateUserName(name string) error {
	if name == "" || len(name) > maxUserNameLen || strings.TrimSpace(name) != name {
		return common.ErrorInvalidLoginFormat
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("._-@", r) {
			return common.ErrorInvalidLoginFormat
		}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return common.ErrorInvalidPasswordFormat
	}
	return nil
}
