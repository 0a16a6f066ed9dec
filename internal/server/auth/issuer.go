package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Seed is the identity a token pair is minted for.
type Seed struct {
	Subject string
	Role    Role
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessID         string
	RefreshID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Lifetimes configures token validity windows. Access must be shorter than
// Refresh.
type Lifetimes struct {
	Access  time.Duration
	Refresh time.Duration
}

var (
	errInvalidSeed      = errors.New("seed requires subject and role")
	errSubjectMismatch  = errors.New("refresh token belongs to another subject")
	errInvalidLifetimes = errors.New("access ttl must be positive and shorter than refresh ttl")
)

// Issuer mints access/refresh pairs and performs refresh rotation.
type Issuer struct {
	codec     *Codec
	validator *Validator
	store     RevocationStore
	ttl       Lifetimes
	newID     func() string
	logger    logging.Logger
}

func NewIssuer(codec *Codec, validator *Validator, store RevocationStore, ttl Lifetimes, l logging.Logger) (*Issuer, error) {
	if ttl.Access <= 0 || ttl.Access >= ttl.Refresh {
		return nil, fmt.Errorf("%w: access=%s refresh=%s", errInvalidLifetimes, ttl.Access, ttl.Refresh)
	}
	return &Issuer{
		codec:     codec,
		validator: validator,
		store:     store,
		ttl:       ttl,
		newID:     uuid.NewString,
		logger:    l.With("module", "token_issuer"),
	}, nil
}

// Issue mints a fresh pair for seed. The refresh token starts a new
// rotation family.
func (i *Issuer) Issue(seed Seed) (TokenPair, error) {
	if seed.Subject == "" || seed.Role == "" {
		return TokenPair{}, errInvalidSeed
	}
	return i.mint(seed, i.newID())
}

// Refresh redeems a refresh token exactly once. The presented jti is revoked
// before a new pair is minted, so a failure in between leaves the caller
// with no valid refresh token and it must log in again.
func (i *Issuer) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	return i.RefreshWith(ctx, rawRefresh, nil)
}

// SeedCheck inspects a validated refresh Principal before rotation and
// returns the seed for the new pair. An error aborts the refresh with
// nothing revoked or minted.
type SeedCheck func(ctx context.Context, p Principal) (Seed, error)

// RefreshWith is Refresh with check deciding who the new pair is for. A nil
// check reuses the subject and role of the presented token.
func (i *Issuer) RefreshWith(ctx context.Context, rawRefresh string, check SeedCheck) (TokenPair, error) {
	p, err := i.validator.Validate(ctx, rawRefresh, KindRefresh)
	if err != nil {
		if errors.Is(err, ErrRevokedToken) {
			var family string
			if claims, derr := i.codec.Decode(rawRefresh); derr == nil {
				family = claims.Family
			}
			i.logger.Warn(ctx, "revoked refresh token presented", "family", family)
		}
		return TokenPair{}, err
	}

	seed := Seed{Subject: p.Subject, Role: p.Role}
	if check != nil {
		if seed, err = check(ctx, p); err != nil {
			return TokenPair{}, err
		}
		if seed.Subject == "" || seed.Role == "" {
			return TokenPair{}, errInvalidSeed
		}
	}

	first, err := i.store.Revoke(ctx, p.TokenID, ReasonRotationSuperseded, p.ExpiresAt)
	if err != nil {
		i.logger.Error(ctx, "revoking superseded refresh token failed", "family", p.Family, "error", err)
		return TokenPair{}, unavailable(err)
	}
	if !first {
		// Another request redeemed the same token concurrently.
		i.logger.Warn(ctx, "refresh token replay", "family", p.Family)
		return TokenPair{}, newError(CodeRevokedToken, nil)
	}

	if err := ctx.Err(); err != nil {
		i.logger.Error(ctx, "refresh rotation aborted after revocation", "family", p.Family, "error", err)
		return TokenPair{}, newError(CodeRotationAborted, err)
	}

	pair, err := i.mint(seed, p.Family)
	if err != nil {
		i.logger.Error(ctx, "minting rotated pair failed", "family", p.Family, "error", err)
		return TokenPair{}, newError(CodeRotationAborted, err)
	}

	i.logger.Debug(ctx, "refresh token rotated", "family", p.Family)
	return pair, nil
}

// Logout revokes jti until the given expiry. Callers revoke both the access
// and the refresh jti of the session; see LogoutSession.
func (i *Issuer) Logout(ctx context.Context, jti string, until time.Time) error {
	return i.revoke(ctx, jti, ReasonLogout, until)
}

// LogoutSession revokes the access token identified by access and, when
// rawRefresh is non-empty, the refresh token of the same subject. A refresh
// token that is already expired or revoked is ignored.
func (i *Issuer) LogoutSession(ctx context.Context, access Principal, rawRefresh string) error {
	if err := i.Logout(ctx, access.TokenID, access.ExpiresAt); err != nil {
		return err
	}
	if rawRefresh == "" {
		return nil
	}

	refresh, err := i.validator.Validate(ctx, rawRefresh, KindRefresh)
	switch {
	case errors.Is(err, ErrExpiredToken), errors.Is(err, ErrRevokedToken):
		return nil
	case err != nil:
		return err
	}
	if refresh.Subject != access.Subject {
		return newError(CodeMalformedToken, errSubjectMismatch)
	}
	return i.Logout(ctx, refresh.TokenID, refresh.ExpiresAt)
}

// RevokeToken revokes any token this server issued, whatever its kind,
// with ReasonAdministrative. Expired tokens are reported as ErrExpiredToken
// since there is nothing left to revoke.
func (i *Issuer) RevokeToken(ctx context.Context, raw string) (Principal, error) {
	claims, err := i.codec.Decode(raw)
	if err != nil {
		return Principal{}, err
	}
	if err := i.RevokeAdministratively(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return Principal{}, err
	}
	return principalFromClaims(claims), nil
}

// RevokeAdministratively revokes jti with ReasonAdministrative.
func (i *Issuer) RevokeAdministratively(ctx context.Context, jti string, until time.Time) error {
	return i.revoke(ctx, jti, ReasonAdministrative, until)
}

func (i *Issuer) revoke(ctx context.Context, jti string, reason Reason, until time.Time) error {
	if _, err := i.store.Revoke(ctx, jti, reason, until); err != nil {
		i.logger.Error(ctx, "revocation failed", "reason", reason, "error", err)
		return unavailable(err)
	}
	return nil
}

func (i *Issuer) mint(seed Seed, family string) (TokenPair, error) {
	now := i.codec.Now().Truncate(time.Second)

	access := i.claims(seed, KindAccess, now, i.ttl.Access)
	refresh := i.claims(seed, KindRefresh, now, i.ttl.Refresh)
	refresh.Family = family

	accessToken, err := i.codec.Encode(access)
	if err != nil {
		return TokenPair{}, fmt.Errorf("signing access token: %w", err)
	}
	refreshToken, err := i.codec.Encode(refresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("signing refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessID:         access.ID,
		RefreshID:        refresh.ID,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

func (i *Issuer) claims(seed Seed, kind TokenKind, now time.Time, ttl time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   seed.Subject,
			ID:        i.newID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: seed.Role,
		Kind: kind,
	}
}
