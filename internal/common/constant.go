// Package common contains shared constants and sentinel errors used across
// the gophauth server components.
package common

// AuthorizationHeaderName is the HTTP header and gRPC metadata key carrying
// the bearer access token.
const AuthorizationHeaderName = "authorization"

// AccessTokenHeaderName is the legacy gRPC metadata key that carries a raw
// access token without the "Bearer " prefix.
const AccessTokenHeaderName = "access_token"

// BearerScheme prefixes the token inside the authorization header.
const BearerScheme = "Bearer"
