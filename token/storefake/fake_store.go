package storefake

import (
	"sync"

	"golang.org/x/oauth2"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
	"github.com/novalearn/go-portal-client/token"
)

var _ token.Store = (*FakeStore)(nil)

type FakeStore struct {
	tok        *oauth2.Token
	lock       sync.RWMutex
	PutCalls   int
	ClearCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Get() (*oauth2.Token, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.tok == nil {
		return nil, clienterrors.ErrNoToken
	}
	return fs.tok, nil
}

func (fs *FakeStore) Put(t *oauth2.Token) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.tok = t
	fs.PutCalls++
	return nil
}

func (fs *FakeStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.tok = nil
	fs.ClearCalls++
	return nil
}
