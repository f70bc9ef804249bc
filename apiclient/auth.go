package apiclient

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
	"github.com/novalearn/go-portal-client/session"
)

var _ session.AuthAPI = (*Client)(nil)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	Remember   bool   `json:"remember"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials via POST /auth/login. A rejected login is
// reported as ErrInvalidCredentials rather than the generic unauthorized.
func (c *Client) Login(ctx context.Context, identifier, secret string, remember bool) (*session.Credentials, error) {
	var creds session.Credentials
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", loginRequest{
		Identifier: identifier,
		Secret:     secret,
		Remember:   remember,
	}, &creds)
	if err != nil {
		if clienterrors.Is(err, clienterrors.ErrUnauthorized) {
			return nil, errors.Wrap(clienterrors.ErrInvalidCredentials, "[Client.Login]")
		}
		return nil, errors.Wrap(err, "[Client.Login]")
	}
	return &creds, nil
}

// Register creates an account via POST /auth/register.
func (c *Client) Register(ctx context.Context, payload session.RegisterPayload) (*session.Credentials, error) {
	var creds session.Credentials
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", payload, &creds); err != nil {
		return nil, errors.Wrap(err, "[Client.Register]")
	}
	return &creds, nil
}

// Refresh exchanges the refresh token via POST /auth/refresh. A rejected
// exchange is terminal for the session and reported as ErrRefreshFailed.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Credentials, error) {
	var creds session.Credentials
	err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &creds)
	if err != nil {
		if clienterrors.Is(err, clienterrors.ErrUnauthorized) {
			return nil, errors.Wrap(clienterrors.ErrRefreshFailed, "[Client.Refresh]")
		}
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	return &creds, nil
}

// Me fetches the current identity via GET /users/me.
func (c *Client) Me(ctx context.Context, accessToken string) (*session.Identity, error) {
	var ident session.Identity
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", accessToken, nil, &ident); err != nil {
		return nil, errors.Wrap(err, "[Client.Me]")
	}
	return &ident, nil
}
