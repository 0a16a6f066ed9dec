// Package revocation provides the RevocationStore backends selected by
// revocation_store_endpoint:
//
//	postgres://...   revoked_tokens table (shared)
//	database         revoked_tokens table on the main database pool (shared)
//	redis://...      SET NX with expiry at the token's exp (shared)
//	memory://        process-local map, development and tests only
//
// Any backend can be wrapped in a read-through Cache, and a Purger removes
// expired entries on an interval.
package revocation
