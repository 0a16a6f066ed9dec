package auth

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Validator turns a raw token into a Principal.
type Validator struct {
	codec  TokenDecoder
	store  RevocationStore
	logger logging.Logger
}

func NewValidator(codec TokenDecoder, store RevocationStore, l logging.Logger) *Validator {
	return &Validator{
		codec:  codec,
		store:  store,
		logger: l.With("module", "token_validator"),
	}
}

// Validate decodes raw, checks that it is of the expected kind and that its
// jti has not been revoked. On failure the Principal is always the zero
// value. No user-store lookups happen here.
func (v *Validator) Validate(ctx context.Context, raw string, want TokenKind) (Principal, error) {
	claims, err := v.codec.Decode(raw)
	if err != nil {
		return Principal{}, err
	}

	if claims.Kind != want {
		return Principal{}, newError(CodeWrongTokenKind, fmt.Errorf("got %s token, want %s", claims.Kind, want))
	}

	revoked, err := v.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		v.logger.Error(ctx, "revocation check failed", "kind", want, "error", err)
		return Principal{}, unavailable(err)
	}
	if revoked {
		return Principal{}, newError(CodeRevokedToken, nil)
	}

	return principalFromClaims(claims), nil
}
