package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ExpiryOf extracts the exp claim from a raw access token without verifying
// its signature. Signature validation is the server's job; the client only
// needs the expiry to decide when a refresh is due.
func ExpiryOf(rawToken string) (time.Time, error) {
	unverifiedToken, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "[ExpiryOf] ParseUnverified")
	}

	claims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, errors.New("[ExpiryOf] error extracting claims")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, errors.New("[ExpiryOf] token missing exp claim")
	}

	return time.Unix(int64(exp), 0), nil
}
