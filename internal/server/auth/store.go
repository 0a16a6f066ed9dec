package auth

import (
	"context"
	"time"
)

// Reason records why a token identifier was revoked.
type Reason string

const (
	ReasonLogout             Reason = "logout"
	ReasonRotationSuperseded Reason = "rotation-superseded"
	ReasonAdministrative     Reason = "administrative"
)

// RevocationStore is the shared record of invalidated token identifiers.
// Implementations must be visible to every server instance and safe for
// concurrent use. Revocation is monotonic: a jti is never un-revoked.
type RevocationStore interface {
	// Revoke records jti as revoked until the token's natural expiry. It is
	// idempotent; the returned bool is true only for the call that created
	// the entry, which lets callers enforce single use.
	Revoke(ctx context.Context, jti string, reason Reason, until time.Time) (bool, error)

	// IsRevoked reports whether jti has been revoked. Any error means the
	// answer is unknown and callers must fail closed.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// PurgeExpired drops entries whose until is at or before now and returns
	// how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
