package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/novalearn/go-portal-client/token"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestExpiryOf(t *testing.T) {
	exp := time.Now().Add(1 * time.Hour).Truncate(time.Second)
	raw := signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})

	got, err := token.ExpiryOf(raw)
	require.NoError(t, err)
	require.Equal(t, exp.Unix(), got.Unix())
}

func TestExpiryOfMalformedToken(t *testing.T) {
	_, err := token.ExpiryOf("not-a-jwt")
	require.Error(t, err)
}

func TestExpiryOfMissingExpClaim(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "user-1"})
	_, err := token.ExpiryOf(raw)
	require.Error(t, err)
}

func TestPairDerivesExpiryFromAccessToken(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	pair := token.Pair(signedToken(t, jwt.MapClaims{"exp": exp.Unix()}), "refresh-1")

	require.Equal(t, "refresh-1", pair.RefreshToken)
	require.Equal(t, "bearer", pair.TokenType)
	require.Equal(t, exp.Unix(), pair.Expiry.Unix())
}

func TestValid(t *testing.T) {
	require.False(t, token.Valid(nil))
	require.False(t, token.Valid(token.Pair("", "refresh-1")))

	fresh := token.Pair(signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), "")
	require.True(t, token.Valid(fresh))

	expired := token.Pair(signedToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), "")
	require.False(t, token.Valid(expired))

	// Inside the leeway window the token counts as expired even though the
	// exp claim is still in the future.
	almost := token.Pair(signedToken(t, jwt.MapClaims{"exp": time.Now().Add(5 * time.Second).Unix()}), "")
	require.False(t, token.Valid(almost))

	// No exp claim means a zero expiry, treated as non-expiring.
	opaque := token.Pair(signedToken(t, jwt.MapClaims{"sub": "user-1"}), "")
	require.True(t, token.Valid(opaque))
}

func TestValidUsesNowTimeFunc(t *testing.T) {
	defer func() { token.NowTimeFunc = time.Now }()

	pair := token.Pair(signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), "")

	token.NowTimeFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.False(t, token.Valid(pair))
}
