package notifications

import "time"

// Kind classifies a notification for presentation.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notification is a single entry in the user's notification feed.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Kind       Kind      `json:"kind"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
	ActionLink string    `json:"actionLink,omitempty"`
}
