package auth

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the shortest accepted HMAC shared secret.
const MinSecretLen = 32

// KeySource says where the codec keys come from: a shared secret for HS*
// algorithms, PEM files for RS256 and EdDSA. Without a private key file the
// codec can only verify. Without a public key file the public half is
// derived from the private key.
type KeySource struct {
	Secret         string
	PrivateKeyFile string
	PublicKeyFile  string
}

var errNoKeyMaterial = errors.New("no key material configured")

// LoadCodec builds a Codec for alg from src.
func LoadCodec(alg string, src KeySource, opts ...CodecOption) (*Codec, error) {
	switch alg {
	case AlgHS256, AlgHS384, AlgHS512:
		if len(src.Secret) < MinSecretLen {
			return nil, fmt.Errorf("%s signing key must be at least %d bytes", alg, MinSecretLen)
		}
		return NewHMACCodec(alg, []byte(src.Secret), opts...)
	case AlgRS256, AlgEdDSA:
		sign, verify, err := loadKeyPair(alg, src)
		if err != nil {
			return nil, err
		}
		return NewCodec(alg, sign, verify, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedAlgorithm, alg)
	}
}

func loadKeyPair(alg string, src KeySource) (sign, verify any, err error) {
	if src.PrivateKeyFile == "" && src.PublicKeyFile == "" {
		return nil, nil, fmt.Errorf("%s: %w", alg, errNoKeyMaterial)
	}

	if src.PrivateKeyFile != "" {
		pem, err := os.ReadFile(src.PrivateKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read private key: %w", err)
		}
		switch alg {
		case AlgRS256:
			key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
			if err != nil {
				return nil, nil, fmt.Errorf("parse RSA private key: %w", err)
			}
			sign, verify = key, &key.PublicKey
		case AlgEdDSA:
			key, err := jwt.ParseEdPrivateKeyFromPEM(pem)
			if err != nil {
				return nil, nil, fmt.Errorf("parse Ed25519 private key: %w", err)
			}
			edKey, ok := key.(ed25519.PrivateKey)
			if !ok {
				return nil, nil, fmt.Errorf("private key is %T, want Ed25519", key)
			}
			sign, verify = edKey, edKey.Public()
		}
	}

	if src.PublicKeyFile != "" {
		pem, err := os.ReadFile(src.PublicKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read public key: %w", err)
		}
		var pub crypto.PublicKey
		switch alg {
		case AlgRS256:
			var key *rsa.PublicKey
			key, err = jwt.ParseRSAPublicKeyFromPEM(pem)
			pub = key
		case AlgEdDSA:
			pub, err = jwt.ParseEdPublicKeyFromPEM(pem)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse public key: %w", err)
		}
		verify = pub
	}

	return sign, verify, nil
}
