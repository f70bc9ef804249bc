package token

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// expiryLeeway is subtracted from the expiry when deciding whether an access
// token is still usable, so a token is not attached to a request moments
// before the server rejects it.
const expiryLeeway = 10 * time.Second

// Pair assembles a token pair from the raw credentials returned by the auth
// endpoints. The expiry is derived from the access token's exp claim; a token
// without one gets a zero Expiry and is treated as non-expiring on the client
// (the server remains the authority either way).
func Pair(accessToken, refreshToken string) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}
	if exp, err := ExpiryOf(accessToken); err == nil {
		t.Expiry = exp
	}
	return t
}

// Valid reports whether t holds an access token that has not expired.
func Valid(t *oauth2.Token) bool {
	if t == nil || strings.TrimSpace(t.AccessToken) == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return NowTimeFunc().Before(t.Expiry.Add(-expiryLeeway))
}
