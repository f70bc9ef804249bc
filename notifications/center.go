package notifications

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/novalearn/go-portal-client/realtime"
)

// Server-pushed events carried on the realtime channel.
const (
	eventNew         = "new_notification"
	eventRead        = "notification_read"
	eventDeleted     = "notification_deleted"
	eventUnreadCount = "unread_count"
)

// Channel is the slice of the realtime channel the reconciler consumes.
type Channel interface {
	On(event string, handler realtime.Handler) func()
	OnConnect(hook func()) func()
}

// Alerter presents a newly pushed notification to the user. Implementations
// own focus and permission concerns; the reconciler calls both hooks for
// every push.
type Alerter interface {
	Toast(n Notification)
	System(n Notification)
}

// NopAlerter discards alerts. The default.
type NopAlerter struct{}

func (NopAlerter) Toast(Notification)  {}
func (NopAlerter) System(Notification) {}

// Center keeps the local notification feed consistent with the server. The
// feed converges through three inputs that may arrive in any order: the REST
// baseline, realtime pushes, and the authoritative unread counter. Local
// mutations apply optimistically and roll back when the REST confirmation
// fails.
type Center struct {
	api     API
	channel Channel
	alerter Alerter
	log     zerolog.Logger

	lock    sync.Mutex
	entries []Notification
	unread  int

	unsubs []func()
}

// CenterOption defines a function type to modify the Center instance.
type CenterOption func(*Center)

// WithAlerter sets the presentation hooks for pushed notifications.
func WithAlerter(a Alerter) CenterOption {
	return func(c *Center) {
		c.alerter = a
	}
}

// WithCenterLogger sets the logger for reconciliation diagnostics.
func WithCenterLogger(log zerolog.Logger) CenterOption {
	return func(c *Center) {
		c.log = log
	}
}

// NewCenter creates a notification reconciler over the REST bindings and the
// realtime channel.
func NewCenter(api API, channel Channel, options ...CenterOption) (*Center, error) {
	if api == nil {
		return nil, errors.New("[NewCenter] api is required")
	}
	if channel == nil {
		return nil, errors.New("[NewCenter] channel is required")
	}

	c := &Center{
		api:     api,
		channel: channel,
		alerter: NopAlerter{},
		log:     zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Bootstrap loads the REST baseline and then subscribes to realtime pushes.
// The baseline comes first so pushes always land on a populated feed; events
// missed in between are recovered by the reconnect resync.
func (c *Center) Bootstrap(ctx context.Context) error {
	if err := c.resync(ctx); err != nil {
		return errors.Wrap(err, "[Center.Bootstrap]")
	}

	c.unsubs = append(c.unsubs,
		c.channel.On(eventNew, c.handleNew),
		c.channel.On(eventRead, c.handleRead),
		c.channel.On(eventDeleted, c.handleDeleted),
		c.channel.On(eventUnreadCount, c.handleUnreadCount),
		c.channel.OnConnect(func() {
			if err := c.resync(context.Background()); err != nil {
				c.log.Warn().Err(err).Msg("notification resync after reconnect failed")
			}
		}),
	)
	return nil
}

// Shutdown detaches the realtime subscriptions. Idempotent.
func (c *Center) Shutdown() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// resync replaces the local feed with the server's view. Used for the
// initial baseline and after every reconnect, since pushes can be missed
// while offline.
func (c *Center) resync(ctx context.Context) error {
	entries, err := c.api.List(ctx)
	if err != nil {
		return errors.Wrap(err, "[Center.resync] List")
	}
	count, err := c.api.UnreadCount(ctx)
	if err != nil {
		return errors.Wrap(err, "[Center.resync] UnreadCount")
	}

	c.lock.Lock()
	c.entries = entries
	c.unread = count
	c.lock.Unlock()
	return nil
}

// List returns a copy of the feed, newest first.
func (c *Center) List() []Notification {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make([]Notification, len(c.entries))
	copy(out, c.entries)
	return out
}

// Unread returns the current unread counter.
func (c *Center) Unread() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.unread
}

// MarkAsRead flags the given notifications read, optimistically. The change
// rolls back when the server rejects it.
func (c *Center) MarkAsRead(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	c.lock.Lock()
	changed := c.markReadLocked(ids)
	c.lock.Unlock()

	if err := c.api.MarkRead(ctx, ids); err != nil {
		c.lock.Lock()
		c.markUnreadLocked(changed)
		c.lock.Unlock()
		return errors.Wrap(err, "[Center.MarkAsRead]")
	}
	return nil
}

// MarkAllAsRead flags the whole feed read, optimistically.
func (c *Center) MarkAllAsRead(ctx context.Context) error {
	c.lock.Lock()
	prevUnread := c.unread
	changed := make([]string, 0)
	for i := range c.entries {
		if !c.entries[i].IsRead {
			c.entries[i].IsRead = true
			changed = append(changed, c.entries[i].ID)
		}
	}
	c.unread = 0
	c.lock.Unlock()

	if err := c.api.MarkAllRead(ctx); err != nil {
		c.lock.Lock()
		for i := range c.entries {
			if containsID(changed, c.entries[i].ID) {
				c.entries[i].IsRead = false
			}
		}
		c.unread = prevUnread
		c.lock.Unlock()
		return errors.Wrap(err, "[Center.MarkAllAsRead]")
	}
	return nil
}

type removedEntry struct {
	index int
	entry Notification
}

// Delete removes the given notifications, optimistically. On rejection the
// removed entries return to their original positions.
func (c *Center) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	c.lock.Lock()
	removed := make([]removedEntry, 0, len(ids))
	kept := c.entries[:0]
	for i, e := range c.entries {
		if containsID(ids, e.ID) {
			removed = append(removed, removedEntry{index: i, entry: e})
			if !e.IsRead {
				c.decrementUnreadLocked()
			}
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	c.lock.Unlock()

	if err := c.api.Delete(ctx, ids); err != nil {
		c.lock.Lock()
		// Reinsert in ascending index order so each entry lands where it was.
		for _, r := range removed {
			idx := r.index
			if idx > len(c.entries) {
				idx = len(c.entries)
			}
			c.entries = append(c.entries[:idx], append([]Notification{r.entry}, c.entries[idx:]...)...)
			if !r.entry.IsRead {
				c.unread++
			}
		}
		c.lock.Unlock()
		return errors.Wrap(err, "[Center.Delete]")
	}
	return nil
}

func (c *Center) handleNew(data json.RawMessage) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed notification push")
		return
	}

	c.lock.Lock()
	for _, e := range c.entries {
		if e.ID == n.ID {
			// Already known: a resync or an earlier push got here first.
			c.lock.Unlock()
			return
		}
	}
	c.entries = append([]Notification{n}, c.entries...)
	if !n.IsRead {
		c.unread++
	}
	c.lock.Unlock()

	c.alerter.Toast(n)
	c.alerter.System(n)
}

func (c *Center) handleRead(data json.RawMessage) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed read push")
		return
	}

	c.lock.Lock()
	c.markReadLocked([]string{p.ID})
	c.lock.Unlock()
}

func (c *Center) handleDeleted(data json.RawMessage) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed delete push")
		return
	}

	c.lock.Lock()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.ID == p.ID {
			if !e.IsRead {
				c.decrementUnreadLocked()
			}
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	c.lock.Unlock()
}

// handleUnreadCount overwrites the local counter; the server's count is
// authoritative over any locally derived value.
func (c *Center) handleUnreadCount(data json.RawMessage) {
	var p struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed unread count push")
		return
	}

	c.lock.Lock()
	c.unread = p.UnreadCount
	c.lock.Unlock()
}

// markReadLocked flips the given entries to read and returns the ids that
// actually changed, for rollback.
func (c *Center) markReadLocked(ids []string) []string {
	changed := make([]string, 0, len(ids))
	for i := range c.entries {
		if !c.entries[i].IsRead && containsID(ids, c.entries[i].ID) {
			c.entries[i].IsRead = true
			changed = append(changed, c.entries[i].ID)
			c.decrementUnreadLocked()
		}
	}
	return changed
}

func (c *Center) markUnreadLocked(ids []string) {
	for i := range c.entries {
		if c.entries[i].IsRead && containsID(ids, c.entries[i].ID) {
			c.entries[i].IsRead = false
			c.unread++
		}
	}
}

func (c *Center) decrementUnreadLocked() {
	if c.unread > 0 {
		c.unread--
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
