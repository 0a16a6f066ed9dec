package services

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/revocation"
)

// AdminService exposes operator actions on the revocation list.
type AdminService struct {
	issuer *auth.Issuer
	purger *revocation.Purger
	logger logging.Logger
}

func NewAdminService(issuer *auth.Issuer, purger *revocation.Purger, l logging.Logger) *AdminService {
	return &AdminService{
		issuer: issuer,
		purger: purger,
		logger: l.With("module", "admin_service"),
	}
}

// RevokeToken revokes a token this server issued, on behalf of operator.
func (s *AdminService) RevokeToken(ctx context.Context, operator auth.Principal, raw string) (auth.Principal, error) {
	p, err := s.issuer.RevokeToken(ctx, raw)
	if err != nil {
		return auth.Principal{}, err
	}
	s.logger.Info(ctx, "token revoked administratively",
		"operator", operator.Subject, "jti", p.TokenID, "kind", p.Kind)
	return p, nil
}

// PurgeExpired runs one purge pass immediately.
func (s *AdminService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.purger.PurgeOnce(ctx)
	if err != nil {
		s.logger.Error(ctx, "manual purge failed", "error", err)
		return 0, &auth.Error{Code: auth.CodeStoreUnavailable, Err: err}
	}
	return n, nil
}
