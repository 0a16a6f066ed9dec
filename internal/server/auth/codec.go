package auth

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
	AlgRS256 = "RS256"
	AlgEdDSA = "EdDSA"
)

var (
	errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	errVerifyOnly           = errors.New("codec has no signing key")
)

// TokenEncoder signs a claim set into its wire form.
type TokenEncoder interface {
	Encode(c Claims) (string, error)
}

// TokenDecoder verifies and parses a wire token.
type TokenDecoder interface {
	Decode(raw string) (Claims, error)
}

// Codec encodes and decodes signed JWTs with one configured algorithm. It
// holds no mutable state and is safe for concurrent use.
type Codec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	now       func() time.Time
	parser    *jwt.Parser
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock replaces time.Now as the codec's notion of the current time.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec for alg. For HMAC algorithms both keys are the
// shared secret as []byte. For RS256 signKey is *rsa.PrivateKey and
// verifyKey *rsa.PublicKey; for EdDSA they are ed25519.PrivateKey and
// ed25519.PublicKey. A nil signKey yields a verify-only codec.
func NewCodec(alg string, signKey, verifyKey any, opts ...CodecOption) (*Codec, error) {
	if err := checkKeys(alg, signKey, verifyKey); err != nil {
		return nil, err
	}

	c := &Codec{
		method:    jwt.GetSigningMethod(alg),
		signKey:   signKey,
		verifyKey: verifyKey,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// NewHMACCodec is a shortcut for HS* algorithms with a shared secret.
func NewHMACCodec(alg string, secret []byte, opts ...CodecOption) (*Codec, error) {
	return NewCodec(alg, secret, secret, opts...)
}

func checkKeys(alg string, signKey, verifyKey any) error {
	switch alg {
	case AlgHS256, AlgHS384, AlgHS512:
		secret, ok := verifyKey.([]byte)
		if !ok || len(secret) == 0 {
			return fmt.Errorf("%s requires a non-empty shared secret", alg)
		}
		if signKey != nil {
			if _, ok := signKey.([]byte); !ok {
				return fmt.Errorf("%s signing key must be []byte", alg)
			}
		}
	case AlgRS256:
		if _, ok := verifyKey.(*rsa.PublicKey); !ok {
			return fmt.Errorf("%s requires an RSA public key", alg)
		}
		if signKey != nil {
			if _, ok := signKey.(*rsa.PrivateKey); !ok {
				return fmt.Errorf("%s signing key must be an RSA private key", alg)
			}
		}
	case AlgEdDSA:
		if _, ok := verifyKey.(ed25519.PublicKey); !ok {
			return fmt.Errorf("%s requires an Ed25519 public key", alg)
		}
		if signKey != nil {
			if _, ok := signKey.(ed25519.PrivateKey); !ok {
				return fmt.Errorf("%s signing key must be an Ed25519 private key", alg)
			}
		}
	default:
		return fmt.Errorf("%w: %q", errUnsupportedAlgorithm, alg)
	}
	return nil
}

// Algorithm returns the algorithm identifier written into token headers.
func (c *Codec) Algorithm() string { return c.method.Alg() }

// Now returns the codec's current time.
func (c *Codec) Now() time.Time { return c.now() }

// Encode signs the claim set.
func (c *Codec) Encode(claims Claims) (string, error) {
	if c.signKey == nil {
		return "", errVerifyOnly
	}
	if err := claims.Validate(); err != nil {
		return "", newError(CodeMalformedToken, err)
	}
	return jwt.NewWithClaims(c.method, claims).SignedString(c.signKey)
}

// Decode verifies the signature, then the structure of the claims, then
// expiry. The returned error is always an *Error.
func (c *Codec) Decode(raw string) (Claims, error) {
	var claims Claims
	_, err := c.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}
	return claims, nil
}

// classify maps jwt library errors onto the closed code set. Structural
// claim errors win over expiry when both are reported.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newError(CodeSignatureInvalid, err)
	case errors.Is(err, errInvalidClaimSet):
		return newError(CodeMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(CodeExpiredToken, err)
	default:
		return newError(CodeMalformedToken, err)
	}
}
