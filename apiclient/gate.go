package apiclient

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
)

// TokenSource supplies and renews the bearer credential for gated requests.
// session.Manager satisfies it.
type TokenSource interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	SetReturnTo(path string)
}

// Gate wraps every outbound call to a protected endpoint. It attaches the
// current bearer token, and on an authorization failure coordinates a single
// refresh through the TokenSource (single-flight lives in the session
// manager) before resending the request exactly once.
type Gate struct {
	c      *Client
	source TokenSource
	log    zerolog.Logger
}

// GateOption defines a function type to modify the Gate instance.
type GateOption func(*Gate)

// WithGateLogger sets the logger used for retry decisions.
func WithGateLogger(log zerolog.Logger) GateOption {
	return func(g *Gate) {
		g.log = log
	}
}

// NewGate creates a request gate over the given client and token source.
func NewGate(c *Client, source TokenSource, options ...GateOption) (*Gate, error) {
	if c == nil {
		return nil, errors.New("[NewGate] client is required")
	}
	if source == nil {
		return nil, errors.New("[NewGate] token source is required")
	}

	g := &Gate{
		c:      c,
		source: source,
		log:    zerolog.Nop(),
	}

	for _, opt := range options {
		opt(g)
	}

	return g, nil
}

// authPaths are never retried through a refresh; a 401 from them is the
// outcome, not an expired session.
func isAuthPath(path string) bool {
	for _, p := range []string{"/auth/login", "/auth/refresh", "/auth/register"} {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// Do sends the request with the current bearer token attached. The caller's
// request is never mutated; each send works on a clone, and the retry
// decision is carried explicitly through the attempt counter.
func (g *Gate) Do(req *http.Request) (*http.Response, error) {
	return g.send(req, 0)
}

func (g *Gate) send(req *http.Request, attempt int) (*http.Response, error) {
	out := req.Clone(req.Context())
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "[Gate.send] GetBody")
		}
		out.Body = body
	}
	if tok, ok := g.source.AccessToken(); ok {
		out.Header.Set("Authorization", "Bearer "+tok)
	} else {
		out.Header.Del("Authorization")
	}

	resp, err := g.c.http.Do(out)
	if err != nil {
		return nil, errors.Wrapf(clienterrors.ErrNetwork, "[Gate.send] %s %s: %v", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode != http.StatusUnauthorized || attempt > 0 || isAuthPath(req.URL.Path) {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		return resp, nil // body cannot be replayed, surface the 401 as-is
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	g.log.Debug().Str("path", req.URL.Path).Msg("authorization failure, refreshing token")
	if _, err := g.source.Refresh(req.Context()); err != nil {
		g.source.SetReturnTo(req.URL.Path)
		_ = g.source.Logout(req.Context())
		return nil, errors.Wrapf(clienterrors.ErrUnauthorized, "[Gate.send] refresh failed: %v", err)
	}

	return g.send(req, attempt+1)
}

// DoJSON sends a JSON request through the gate and decodes the response.
// A 401 that survives the single retry surfaces as ErrUnauthorized.
func (g *Gate) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := g.c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	return decodeBody(resp, out)
}
