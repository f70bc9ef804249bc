package session

import "context"

// Credentials is the result of a successful credential exchange with the
// auth endpoints. RefreshToken is absent on responses that do not rotate it.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken *string   `json:"refreshToken,omitempty"`
	Identity     *Identity `json:"identity,omitempty"`
}

// RegisterPayload carries the account-creation fields for POST /auth/register.
type RegisterPayload struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

// AuthAPI is the transport for the auth endpoints. The Manager never talks
// HTTP directly; apiclient provides the concrete implementation.
type AuthAPI interface {
	Login(ctx context.Context, identifier, secret string, remember bool) (*Credentials, error)
	Register(ctx context.Context, payload RegisterPayload) (*Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
	Me(ctx context.Context, accessToken string) (*Identity, error)
}
