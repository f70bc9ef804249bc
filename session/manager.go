package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
	"github.com/novalearn/go-portal-client/internal/utils"
	"github.com/novalearn/go-portal-client/token"
)

// Manager owns the authentication state of the client: the persisted token
// pair, the current identity and the ready flag consumers gate on. It is the
// only component that writes the token store.
type Manager struct {
	store token.Store
	api   AuthAPI
	log   zerolog.Logger

	// refreshGroup collapses concurrent refresh attempts into a single
	// network call; every caller observes the same outcome.
	refreshGroup singleflight.Group

	lock        sync.Mutex
	identity    *Identity
	ready       bool
	generation  uint64 // bumped on logout; in-flight refreshes check it before applying
	returnTo    string
	logoutHooks []func()
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// New initializes a new session Manager with required dependencies.
func New(store token.Store, api AuthAPI, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[session.New] token store is required")
	}
	if api == nil {
		return nil, errors.New("[session.New] auth API is required")
	}

	m := &Manager{
		store: store,
		api:   api,
		log:   zerolog.Nop(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Login exchanges credentials for a token pair. On success the pair is
// persisted and the identity set; on failure prior state is left untouched.
func (m *Manager) Login(ctx context.Context, identifier, secret string, remember bool) (*Identity, error) {
	creds, err := m.api.Login(ctx, identifier, secret, remember)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login]")
	}
	if err := m.adopt(creds); err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] adopt")
	}
	m.log.Info().Str("identifier", identifier).Msg("logged in")
	return m.Identity(), nil
}

// Register creates an account and logs it in. An existing authenticated
// session is only replaced when registration succeeds.
func (m *Manager) Register(ctx context.Context, payload RegisterPayload) (*Identity, error) {
	creds, err := m.api.Register(ctx, payload)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Register]")
	}
	if err := m.adopt(creds); err != nil {
		return nil, errors.Wrap(err, "[Manager.Register] adopt")
	}
	return m.Identity(), nil
}

func (m *Manager) adopt(creds *Credentials) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	pair := token.Pair(creds.AccessToken, utils.Value(creds.RefreshToken))
	if err := m.store.Put(pair); err != nil {
		return err
	}
	m.identity = creds.Identity
	m.ready = true
	return nil
}

// Logout clears the token store and identity and runs the registered logout
// hooks (realtime teardown lives there). Safe to call when already logged out.
func (m *Manager) Logout(ctx context.Context) error {
	m.lock.Lock()
	m.generation++
	m.identity = nil
	m.ready = true
	err := m.store.Clear()
	hooks := append([]func(){}, m.logoutHooks...)
	m.lock.Unlock()

	for _, hook := range hooks {
		hook()
	}

	if err != nil {
		return errors.Wrap(err, "[Manager.Logout] store.Clear")
	}
	m.log.Info().Msg("logged out")
	return nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share a single in-flight exchange. Without a refresh token it fails
// fast with ErrNoRefreshToken and no network call is made. A logout that
// lands while the exchange is in flight discards the result instead of
// resurrecting the cleared session.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	stored, err := m.store.Get()
	if err != nil || stored.RefreshToken == "" {
		return "", errors.Wrap(clienterrors.ErrNoRefreshToken, "[Manager.Refresh]")
	}

	m.lock.Lock()
	gen := m.generation
	m.lock.Unlock()

	v, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		creds, err := m.api.Refresh(ctx, stored.RefreshToken)
		if err != nil {
			return nil, err
		}

		m.lock.Lock()
		defer m.lock.Unlock()

		if m.generation != gen {
			return nil, errors.Wrap(clienterrors.ErrRefreshFailed, "session ended during refresh")
		}

		refreshToken := stored.RefreshToken
		if rotated := utils.Value(creds.RefreshToken); rotated != "" {
			refreshToken = rotated
		}
		if err := m.store.Put(token.Pair(creds.AccessToken, refreshToken)); err != nil {
			return nil, err
		}
		if creds.Identity != nil {
			m.identity = creds.Identity
		}
		return creds.AccessToken, nil
	})
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Refresh]")
	}
	return v.(string), nil
}

// Bootstrap restores a persisted session on process start. An expired access
// token is refreshed before the session is marked ready; a valid one is
// optimistically trusted while the identity is fetched. Failures are
// recovered locally by logging out, never surfaced to the caller, so
// dependent consumers only need to wait on Ready.
func (m *Manager) Bootstrap(ctx context.Context) {
	defer m.markReady()

	stored, err := m.store.Get()
	if err != nil {
		return // nothing persisted: start unauthenticated
	}

	if !token.Valid(stored) {
		if _, err := m.Refresh(ctx); err != nil {
			m.log.Warn().Err(err).Msg("bootstrap refresh failed")
			_ = m.Logout(ctx)
		}
		return
	}

	ident, err := m.api.Me(ctx, stored.AccessToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("bootstrap identity fetch failed")
		_ = m.Logout(ctx)
		return
	}

	m.lock.Lock()
	m.identity = ident
	m.lock.Unlock()
}

func (m *Manager) markReady() {
	m.lock.Lock()
	m.ready = true
	m.lock.Unlock()
}

// Ready reports whether bootstrap has settled (successfully or not).
// Protected content must not render before this is true.
func (m *Manager) Ready() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.ready
}

// IsAuthenticated reports whether an identity is currently held.
func (m *Manager) IsAuthenticated() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.identity != nil
}

// Identity returns a copy of the current identity, or nil when logged out.
func (m *Manager) Identity() *Identity {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.identity.clone()
}

// HasRole reports whether the current identity holds any of the given roles.
// Always false when unauthenticated.
func (m *Manager) HasRole(roles ...string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.identity.HasRole(roles...)
}

// HasPermission reports whether the current identity carries the named
// permission. Always false when unauthenticated.
func (m *Manager) HasPermission(name string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.identity.HasPermission(name)
}

// AccessToken returns the current access token when one is held and not
// expired. Both the request gate and the realtime channel read through here
// so a stale token is never reused across reconnects.
func (m *Manager) AccessToken() (string, bool) {
	stored, err := m.store.Get()
	if err != nil || !token.Valid(stored) {
		return "", false
	}
	return stored.AccessToken, true
}

// OnLogout registers a hook run on every logout.
func (m *Manager) OnLogout(hook func()) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.logoutHooks = append(m.logoutHooks, hook)
}

// SetReturnTo records the destination a forced logout interrupted, so the
// next login can redirect back to it.
func (m *Manager) SetReturnTo(path string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.returnTo = path
}

// ConsumeReturnTo returns the stored post-login destination and clears it.
func (m *Manager) ConsumeReturnTo() string {
	m.lock.Lock()
	defer m.lock.Unlock()
	path := m.returnTo
	m.returnTo = ""
	return path
}
