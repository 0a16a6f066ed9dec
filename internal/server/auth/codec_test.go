package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleClaims(now time.Time, kind TokenKind) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role: RoleUser,
		Kind: kind,
	}
	if kind == KindRefresh {
		c.Family = "fam-1"
	}
	return c
}

func assertSameClaims(t *testing.T, want, got Claims) {
	t.Helper()
	assert.Equal(t, want.Subject, got.Subject)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Role, got.Role)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.Family, got.Family)
	assert.Equal(t, want.IssuedAt.Unix(), got.IssuedAt.Unix())
	assert.Equal(t, want.ExpiresAt.Unix(), got.ExpiresAt.Unix())
}

func TestCodec_RoundTrip(t *testing.T) {
	clk := newClock()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	codecs := map[string]func() (*Codec, error){
		AlgHS256: func() (*Codec, error) { return NewHMACCodec(AlgHS256, testSecret, WithClock(clk.Now)) },
		AlgHS384: func() (*Codec, error) { return NewHMACCodec(AlgHS384, testSecret, WithClock(clk.Now)) },
		AlgHS512: func() (*Codec, error) { return NewHMACCodec(AlgHS512, testSecret, WithClock(clk.Now)) },
		AlgRS256: func() (*Codec, error) { return NewCodec(AlgRS256, rsaKey, &rsaKey.PublicKey, WithClock(clk.Now)) },
		AlgEdDSA: func() (*Codec, error) { return NewCodec(AlgEdDSA, edPriv, edPub, WithClock(clk.Now)) },
	}

	for alg, build := range codecs {
		t.Run(alg, func(t *testing.T) {
			codec, err := build()
			require.NoError(t, err)
			assert.Equal(t, alg, codec.Algorithm())

			for _, kind := range []TokenKind{KindAccess, KindRefresh} {
				want := sampleClaims(clk.Now(), kind)
				raw, err := codec.Encode(want)
				require.NoError(t, err)
				assert.Len(t, strings.Split(raw, "."), 3)

				got, err := codec.Decode(raw)
				require.NoError(t, err)
				assertSameClaims(t, want, got)
			}
		})
	}
}

func TestCodec_Expired(t *testing.T) {
	clk := newClock()
	codec, err := NewHMACCodec(AlgHS256, testSecret, WithClock(clk.Now))
	require.NoError(t, err)

	raw, err := codec.Encode(sampleClaims(clk.Now(), KindAccess))
	require.NoError(t, err)

	clk.Advance(15 * time.Minute) // now == exp
	_, err = codec.Decode(raw)
	require.ErrorIs(t, err, ErrExpiredToken)

	clk.Advance(time.Hour)
	_, err = codec.Decode(raw)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestCodec_SignatureFailures(t *testing.T) {
	clk := newClock()
	codec, err := NewHMACCodec(AlgHS256, testSecret, WithClock(clk.Now))
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewHMACCodec(AlgHS256, []byte("another-secret-another-secret-xx"), WithClock(clk.Now))
		require.NoError(t, err)
		raw, err := other.Encode(sampleClaims(clk.Now(), KindAccess))
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("algorithm not configured", func(t *testing.T) {
		hs512, err := NewHMACCodec(AlgHS512, testSecret, WithClock(clk.Now))
		require.NoError(t, err)
		raw, err := hs512.Encode(sampleClaims(clk.Now(), KindAccess))
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("alg none", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, sampleClaims(clk.Now(), KindAccess)).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		raw, err := codec.Encode(sampleClaims(clk.Now(), KindAccess))
		require.NoError(t, err)
		parts := strings.Split(raw, ".")
		forged := sampleClaims(clk.Now(), KindAccess)
		forged.Role = RoleAdmin
		forgedRaw, err := codec.Encode(forged)
		require.NoError(t, err)
		parts[1] = strings.Split(forgedRaw, ".")[1]

		_, err = codec.Decode(strings.Join(parts, "."))
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("expired and badly signed reports signature", func(t *testing.T) {
		other, err := NewHMACCodec(AlgHS256, []byte("another-secret-another-secret-xx"), WithClock(clk.Now))
		require.NoError(t, err)
		c := sampleClaims(clk.Now().Add(-time.Hour), KindAccess)
		raw, err := other.Encode(c)
		require.NoError(t, err)

		_, err = codec.Decode(raw)
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})
}

func TestCodec_Malformed(t *testing.T) {
	clk := newClock()
	codec, err := NewHMACCodec(AlgHS256, testSecret, WithClock(clk.Now))
	require.NoError(t, err)

	sign := func(t *testing.T, claims jwt.Claims) string {
		t.Helper()
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		return raw
	}

	noID := sampleClaims(clk.Now(), KindAccess)
	noID.ID = ""

	badKind := sampleClaims(clk.Now(), KindAccess)
	badKind.Kind = "session"

	noFamily := sampleClaims(clk.Now(), KindRefresh)
	noFamily.Family = ""

	inverted := sampleClaims(clk.Now(), KindAccess)
	inverted.ExpiresAt = jwt.NewNumericDate(clk.Now())

	noExp := sampleClaims(clk.Now(), KindAccess)
	noExp.ExpiresAt = nil

	tests := []struct {
		name string
		raw  string
	}{
		{name: "garbage", raw: "not.a.jwt"},
		{name: "two segments", raw: "abc.def"},
		{name: "empty", raw: ""},
		{name: "missing jti", raw: sign(t, noID)},
		{name: "unknown kind", raw: sign(t, badKind)},
		{name: "refresh without family", raw: sign(t, noFamily)},
		{name: "exp not after iat", raw: sign(t, inverted)},
		{name: "missing exp", raw: sign(t, noExp)},
		{name: "wrong claim types", raw: sign(t, jwt.MapClaims{"sub": 42, "exp": "soon"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Decode(tt.raw)
			require.ErrorIs(t, err, ErrMalformedToken)
			assert.Equal(t, Claims{}, got)
		})
	}
}

func TestCodec_BadHeaderEncoding(t *testing.T) {
	codec, err := NewHMACCodec(AlgHS256, testSecret)
	require.NoError(t, err)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":`))
	_, err = codec.Decode(header + ".e30.sig")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestNewCodec_KeyChecks(t *testing.T) {
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name      string
		alg       string
		signKey   any
		verifyKey any
		wantErr   bool
	}{
		{name: "hmac ok", alg: AlgHS256, signKey: testSecret, verifyKey: testSecret},
		{name: "hmac empty secret", alg: AlgHS256, signKey: []byte{}, verifyKey: []byte{}, wantErr: true},
		{name: "hmac string key", alg: AlgHS256, signKey: "secret", verifyKey: []byte("secret"), wantErr: true},
		{name: "rsa with ed key", alg: AlgRS256, signKey: edPriv, verifyKey: edPub, wantErr: true},
		{name: "eddsa ok", alg: AlgEdDSA, signKey: edPriv, verifyKey: edPub},
		{name: "eddsa verify only", alg: AlgEdDSA, verifyKey: edPub},
		{name: "unsupported", alg: "ES256", signKey: testSecret, verifyKey: testSecret, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(tt.alg, tt.signKey, tt.verifyKey)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCodec_VerifyOnlyCannotEncode(t *testing.T) {
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	codec, err := NewCodec(AlgEdDSA, nil, edPub)
	require.NoError(t, err)

	_, err = codec.Encode(sampleClaims(time.Now(), KindAccess))
	require.Error(t, err)
}

func TestCodec_EncodeRejectsIncompleteClaims(t *testing.T) {
	codec, err := NewHMACCodec(AlgHS256, testSecret)
	require.NoError(t, err)

	c := sampleClaims(time.Now(), KindAccess)
	c.Subject = ""
	_, err = codec.Encode(c)
	require.ErrorIs(t, err, ErrMalformedToken)
}
