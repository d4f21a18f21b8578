package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func staffClaims(sub, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Email: sub + "@clinic.example",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	token, err := SignHS256(staffClaims("user-1", "staff", time.Hour), "test-secret")
	require.NoError(t, err)

	parsed, err := Verifier{Secret: []byte("test-secret")}.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.Subject)
	assert.Equal(t, "staff", parsed.Role)

	_, err = Verifier{Secret: []byte("wrong-secret")}.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(staffClaims("user-1", "admin", -time.Minute), "s")
	require.NoError(t, err)
	_, err = Verifier{Secret: []byte("s")}.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys, err := NewJWKS(ctx, srv.URL, time.Hour, zap.NewNop())
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, staffClaims("user-2", "admin", time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	v := Verifier{Keys: keys}
	parsed, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-2", parsed.Subject)
	assert.Equal(t, "admin", parsed.Role)

	// An HS256 token must not be accepted by an RS256-only verifier.
	hs, err := SignHS256(staffClaims("user-3", "admin", time.Hour), "x")
	require.NoError(t, err)
	_, err = v.Verify(hs)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Tokens signed by a key the set does not carry are rejected.
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, staffClaims("user-4", "admin", time.Hour))
	forged.Header["kid"] = "kid-1"
	signedForged, err := forged.SignedString(other)
	require.NoError(t, err)
	_, err = v.Verify(signedForged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
