package revocations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

type Repository interface {
	auth.RevocationStore
	Get(ctx context.Context, jti string) (*models.RevokedToken, error)
}

var _ Repository = (*PostgresRepository)(nil)

// now is a seam for tests.
var now = time.Now
