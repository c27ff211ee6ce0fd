package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndVerify(t *testing.T) {
	gen, ver, err := LoadAndBuild(JWTConfig{Secret: testSecret, Issuer: "callcenter", Audience: "callcenter-clients", TTL: time.Hour})
	require.NoError(t, err)

	tok, jti, err := gen.Generate("42", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, jti)

	claims, err := ver.ParseAndValidate(tok)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, jti, claims.ID)
}

func TestLoadAndBuildRejectsWeakSecret(t *testing.T) {
	_, _, err := LoadAndBuild(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, _, err = LoadAndBuild(JWTConfig{})
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	gen := NewGenerator([]byte("ffffffffffffffffffffffffffffffff"), "callcenter", "aud", time.Hour)
	ver := NewVerifier([]byte(testSecret), "callcenter", "aud")

	tok, _, err := gen.Generate("1", "user")
	require.NoError(t, err)

	_, err = ver.ParseAndValidate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	gen := NewGenerator([]byte(testSecret), "callcenter", "aud", time.Hour)
	gen.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	ver := NewVerifier([]byte(testSecret), "callcenter", "aud")

	tok, _, err := gen.Generate("1", "user")
	require.NoError(t, err)

	_, err = ver.ParseAndValidate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongAudienceAndAlg(t *testing.T) {
	gen := NewGenerator([]byte(testSecret), "callcenter", "other", time.Hour)
	ver := NewVerifier([]byte(testSecret), "callcenter", "aud")
	tok, _, err := gen.Generate("1", "user")
	require.NoError(t, err)
	_, err = ver.ParseAndValidate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ver.ParseAndValidate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
