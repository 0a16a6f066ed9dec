// Package auth implements the bearer-token core of the server: a JWT codec,
// a validator that consults the revocation store, an issuer that mints and
// rotates access/refresh pairs, and a role guard.
//
// The pipeline for every protected call is
//
//	raw token -> Validator.Validate -> Principal -> Guard.Authorize -> handler
//
// Failures are always *Error values carrying one Code from a closed set;
// transports translate them by Category.
package auth
