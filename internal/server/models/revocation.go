package models

import "time"

// RevokedToken is one row of the revocation list. ExpiresAt is the exp of
// the token it blocks; past that point the row can be purged.
type RevokedToken struct {
	TokenID   string    `db:"jti"`
	Reason    string    `db:"reason"`
	RevokedAt time.Time `db:"revoked_at"`
	ExpiresAt time.Time `db:"expires_at"`
}
