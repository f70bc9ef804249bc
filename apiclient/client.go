package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
)

// Client is the plain REST client for the portal API. It carries no
// credentials of its own; the auth endpoints run unauthenticated and
// everything else goes through the Gate.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout on the underlying http.Client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithClientLogger sets the logger used for request-level diagnostics.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a REST client for the given API base URL.
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// newRequest builds a JSON request with a replayable body (GetBody is set by
// net/http for bytes.Reader bodies), so the Gate can resend it after a
// refresh without touching the original.
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.newRequest] Marshal")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.newRequest] NewRequestWithContext")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	c.log.Debug().Str("method", method).Str("path", path).Msg("api request")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(clienterrors.ErrNetwork, "[Client.doJSON] %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	return decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out interface{}) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "[decodeBody] Decode")
	}
	return nil
}

// statusError maps a non-2xx response to the client error taxonomy.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}

	msg := resp.Status
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrapf(clienterrors.ErrUnauthorized, "%s", msg)
	case resp.StatusCode >= 500:
		return errors.Wrapf(clienterrors.ErrServer, "%s", msg)
	default:
		return errors.Errorf("request failed: %s", msg)
	}
}
