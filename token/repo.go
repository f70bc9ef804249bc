package token

import "golang.org/x/oauth2"

// Store persists the current token pair. Get returns errors.ErrNoToken when
// nothing is stored. Clear is idempotent so logout can always run it.
type Store interface {
	Get() (*oauth2.Token, error)
	Put(t *oauth2.Token) error
	Clear() error
}
