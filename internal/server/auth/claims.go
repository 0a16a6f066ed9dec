package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Valid reports whether k is one of the known kinds.
func (k TokenKind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Role is a capability level carried by a token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Claims is the payload of both token kinds. Family is set on refresh
// tokens only and links a refresh token to its successors.
type Claims struct {
	jwt.RegisteredClaims
	Role   Role      `json:"role,omitempty"`
	Kind   TokenKind `json:"kind"`
	Family string    `json:"fam,omitempty"`
}

var (
	errMissingSubject  = errors.New("sub claim is required")
	errMissingID       = errors.New("jti claim is required")
	errMissingRole     = errors.New("role claim is required")
	errMissingFamily   = errors.New("fam claim is required for refresh tokens")
	errUnknownKind     = errors.New("kind claim must be access or refresh")
	errMissingIssuedAt = errors.New("iat claim is required")
	errMissingExpiry   = errors.New("exp claim is required")
	errExpiryNotAfter  = errors.New("exp must be after iat")

	// errInvalidClaimSet marks structural violations so the codec can tell
	// them apart from time-based failures.
	errInvalidClaimSet = errors.New("invalid claim set")
)

// Validate checks the structure of the claim set. It is called by the jwt
// parser after the signature has been verified.
func (c Claims) Validate() error {
	var errs []error
	if c.Subject == "" {
		errs = append(errs, errMissingSubject)
	}
	if c.ID == "" {
		errs = append(errs, errMissingID)
	}
	if c.Role == "" {
		errs = append(errs, errMissingRole)
	}
	if !c.Kind.Valid() {
		errs = append(errs, errUnknownKind)
	}
	if c.Kind == KindRefresh && c.Family == "" {
		errs = append(errs, errMissingFamily)
	}
	switch {
	case c.IssuedAt == nil:
		errs = append(errs, errMissingIssuedAt)
	case c.ExpiresAt == nil:
		errs = append(errs, errMissingExpiry)
	case !c.ExpiresAt.After(c.IssuedAt.Time):
		errs = append(errs, errExpiryNotAfter)
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{errInvalidClaimSet}, errs...)...)
}

// Principal is the identity resolved from a validated token. It is built
// only by Validator and lives as long as the request that produced it.
type Principal struct {
	Subject   string
	Role      Role
	TokenID   string
	Kind      TokenKind
	Family    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func principalFromClaims(c Claims) Principal {
	return Principal{
		Subject:   c.Subject,
		Role:      c.Role,
		TokenID:   c.ID,
		Kind:      c.Kind,
		Family:    c.Family,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}
}
