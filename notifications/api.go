package notifications

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/novalearn/go-portal-client/apiclient"
)

// API is the REST surface the reconciler confirms its optimistic updates
// against.
type API interface {
	List(ctx context.Context) ([]Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, ids []string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, ids []string) error
}

type restAPI struct {
	gate *apiclient.Gate
}

// NewAPI creates the notification REST bindings over the request gate, so
// every call carries the session token and survives one refresh retry.
func NewAPI(gate *apiclient.Gate) (API, error) {
	if gate == nil {
		return nil, errors.New("[notifications.NewAPI] gate is required")
	}
	return &restAPI{gate: gate}, nil
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type unreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

func (a *restAPI) List(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := a.gate.DoJSON(ctx, http.MethodGet, "/notifications", nil, &out); err != nil {
		return nil, errors.Wrap(err, "[restAPI.List]")
	}
	return out, nil
}

func (a *restAPI) UnreadCount(ctx context.Context) (int, error) {
	var out unreadCountResponse
	if err := a.gate.DoJSON(ctx, http.MethodGet, "/notifications/unread-count", nil, &out); err != nil {
		return 0, errors.Wrap(err, "[restAPI.UnreadCount]")
	}
	return out.UnreadCount, nil
}

func (a *restAPI) MarkRead(ctx context.Context, ids []string) error {
	if err := a.gate.DoJSON(ctx, http.MethodPut, "/notifications/read", idsRequest{IDs: ids}, nil); err != nil {
		return errors.Wrap(err, "[restAPI.MarkRead]")
	}
	return nil
}

func (a *restAPI) MarkAllRead(ctx context.Context) error {
	if err := a.gate.DoJSON(ctx, http.MethodPut, "/notifications/read-all", nil, nil); err != nil {
		return errors.Wrap(err, "[restAPI.MarkAllRead]")
	}
	return nil
}

func (a *restAPI) Delete(ctx context.Context, ids []string) error {
	if err := a.gate.DoJSON(ctx, http.MethodDelete, "/notifications", idsRequest{IDs: ids}, nil); err != nil {
		return errors.Wrap(err, "[restAPI.Delete]")
	}
	return nil
}
