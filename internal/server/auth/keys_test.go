package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePEM(t *testing.T, name, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600))
	return path
}

func TestLoadCodec_HMAC(t *testing.T) {
	c, err := LoadCodec(AlgHS384, KeySource{Secret: string(testSecret)})
	require.NoError(t, err)
	assert.Equal(t, AlgHS384, c.Algorithm())

	_, err = LoadCodec(AlgHS256, KeySource{Secret: "short"})
	assert.Error(t, err)
}

func TestLoadCodec_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	privPath := writePEM(t, "rsa.key", "PRIVATE KEY", privDER)
	pubPath := writePEM(t, "rsa.pub", "PUBLIC KEY", pubDER)

	signer, err := LoadCodec(AlgRS256, KeySource{PrivateKeyFile: privPath})
	require.NoError(t, err)
	verifier, err := LoadCodec(AlgRS256, KeySource{PublicKeyFile: pubPath})
	require.NoError(t, err)

	claims := sampleClaims(signer.Now(), KindAccess)
	raw, err := signer.Encode(claims)
	require.NoError(t, err)

	got, err := verifier.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, got.ID)

	_, err = verifier.Encode(claims)
	assert.Error(t, err, "public key only means verify only")
}

func TestLoadCodec_EdDSA(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	c, err := LoadCodec(AlgEdDSA, KeySource{
		PrivateKeyFile: writePEM(t, "ed.key", "PRIVATE KEY", privDER),
		PublicKeyFile:  writePEM(t, "ed.pub", "PUBLIC KEY", pubDER),
	})
	require.NoError(t, err)

	raw, err := c.Encode(sampleClaims(c.Now(), KindRefresh))
	require.NoError(t, err)
	_, err = c.Decode(raw)
	require.NoError(t, err)
}

func TestLoadCodec_Errors(t *testing.T) {
	_, err := LoadCodec(AlgRS256, KeySource{})
	assert.ErrorIs(t, err, errNoKeyMaterial)

	_, err = LoadCodec(AlgEdDSA, KeySource{PrivateKeyFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	garbage := writePEM(t, "junk.pem", "PRIVATE KEY", []byte("junk"))
	_, err = LoadCodec(AlgRS256, KeySource{PrivateKeyFile: garbage})
	assert.Error(t, err)

	_, err = LoadCodec("PS512", KeySource{Secret: string(testSecret)})
	assert.ErrorIs(t, err, errUnsupportedAlgorithm)
}
