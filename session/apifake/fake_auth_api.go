package apifake

import (
	"context"
	"sync"

	"github.com/novalearn/go-portal-client/session"
)

var _ session.AuthAPI = (*FakeAuthAPI)(nil)

// FakeAuthAPI is an in-memory stand-in for the auth endpoints. Results are
// configured up front; call counters and coordination channels let tests
// observe and interleave the exchanges.
type FakeAuthAPI struct {
	lock sync.Mutex

	LoginCreds *session.Credentials
	LoginErr   error
	LoginCalls int

	RegisterCreds *session.Credentials
	RegisterErr   error

	RefreshCreds *session.Credentials
	RefreshErr   error
	RefreshCalls int

	// RefreshStarted is closed on the first refresh; RefreshRelease, when
	// set, blocks the exchange until the test closes it.
	RefreshStarted chan struct{}
	RefreshRelease chan struct{}
	refreshOnce    sync.Once

	MeIdentity *session.Identity
	MeErr      error
	MeCalls    int
}

func (f *FakeAuthAPI) Login(_ context.Context, _, _ string, _ bool) (*session.Credentials, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LoginCalls++
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	return f.LoginCreds, nil
}

func (f *FakeAuthAPI) Register(_ context.Context, _ session.RegisterPayload) (*session.Credentials, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}
	return f.RegisterCreds, nil
}

func (f *FakeAuthAPI) Refresh(_ context.Context, _ string) (*session.Credentials, error) {
	f.lock.Lock()
	f.RefreshCalls++
	started := f.RefreshStarted
	release := f.RefreshRelease
	f.lock.Unlock()

	if started != nil {
		f.refreshOnce.Do(func() { close(started) })
	}
	if release != nil {
		<-release
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.RefreshCreds, nil
}

func (f *FakeAuthAPI) Me(_ context.Context, _ string) (*session.Identity, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.MeCalls++
	if f.MeErr != nil {
		return nil, f.MeErr
	}
	return f.MeIdentity, nil
}
