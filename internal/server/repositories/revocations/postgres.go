package revocations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// PostgresRepository keeps the revocation list in the revoked_tokens table.
// It should be bound to the pool, not to a request transaction, so that a
// revocation survives the rollback of the request that caused it.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Revoke(ctx context.Context, jti string, reason auth.Reason, until time.Time) (bool, error) {
	query :=
		`INSERT INTO revoked_tokens (jti, reason, revoked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (jti) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, jti, string(reason), now().UTC(), until.UTC())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n == 1, nil
}

func (r *PostgresRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`

	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return revoked, nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, at time.Time) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *PostgresRepository) Get(ctx context.Context, jti string) (*models.RevokedToken, error) {
	query :=
		`SELECT jti, reason, revoked_at, expires_at FROM revoked_tokens
		 WHERE jti = $1
		 `

	e := &models.RevokedToken{}
	err := r.db.QueryRowContext(ctx, query, jti).Scan(&e.TokenID, &e.Reason, &e.RevokedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}
