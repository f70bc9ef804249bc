package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
)

// State is the lifecycle state of the realtime channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed // terminal: explicit Close, never left
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives the data payload of a server-pushed event.
type Handler func(data json.RawMessage)

// TokenSource supplies the access token for the connection handshake. It is
// read on every (re)connect so a stale token is never reused.
type TokenSource interface {
	AccessToken() (string, bool)
}

// frame is the wire format of the channel: one JSON object per message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

const eventAck = "ack"

const (
	// Time allowed to keep an idle connection alive.
	defaultPongWait = 60 * time.Second
	writeWait       = 10 * time.Second
)

// Channel supervises a persistent websocket connection to the portal.
// An unplanned disconnect schedules a reconnect after a fixed delay,
// indefinitely, until Close is called. Close always wins over a pending
// reconnect.
type Channel struct {
	url            string
	source         TokenSource
	log            zerolog.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	pongWait       time.Duration

	lock           sync.Mutex
	state          State
	conn           *websocket.Conn
	connDone       chan struct{}
	reconnectTimer *time.Timer
	retries        int
	lastGood       time.Time

	// writeLock serializes frames and control messages on the connection.
	writeLock sync.Mutex

	handlerLock  sync.RWMutex
	nextID       int
	handlers     map[string]map[int]Handler
	connectHooks map[int]func()

	ackLock sync.Mutex
	acks    map[string]Handler
}

// ChannelOption defines a function type to modify the Channel instance.
type ChannelOption func(*Channel)

// WithReconnectDelay sets the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.reconnectDelay = d
	}
}

// WithKeepalive sets the pong wait; pings go out at 9/10 of it.
func WithKeepalive(pongWait time.Duration) ChannelOption {
	return func(c *Channel) {
		c.pongWait = pongWait
	}
}

// WithHandshakeTimeout bounds the websocket dial.
func WithHandshakeTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.dialer.HandshakeTimeout = d
	}
}

// WithChannelLogger sets the logger for connection lifecycle events.
func WithChannelLogger(log zerolog.Logger) ChannelOption {
	return func(c *Channel) {
		c.log = log
	}
}

// NewChannel creates a channel manager for the given websocket URL.
func NewChannel(url string, source TokenSource, options ...ChannelOption) (*Channel, error) {
	if url == "" {
		return nil, errors.New("[NewChannel] url is required")
	}
	if source == nil {
		return nil, errors.New("[NewChannel] token source is required")
	}

	c := &Channel{
		url:            url,
		source:         source,
		log:            zerolog.Nop(),
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: 5 * time.Second,
		pongWait:       defaultPongWait,
		handlers:       make(map[string]map[int]Handler),
		connectHooks:   make(map[int]func()),
		acks:           make(map[string]Handler),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Retries returns the reconnect attempt counter since the last good connect.
func (c *Channel) Retries() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.retries
}

// LastGood returns when the channel last connected or received a frame.
// Zero until the first successful connect.
func (c *Channel) LastGood() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastGood
}

// Connect opens the channel, authenticating the handshake with the current
// access token. It is a no-op when already connecting, connected or closed.
// A dial failure schedules a reconnect and is also returned for callers that
// connect explicitly.
func (c *Channel) Connect(ctx context.Context) error {
	c.lock.Lock()
	if c.state == StateConnecting || c.state == StateConnected || c.state == StateClosed {
		c.lock.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.lock.Unlock()

	header := http.Header{}
	if tok, ok := c.source.AccessToken(); ok {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.lock.Lock()
	if c.state == StateClosed {
		// Close raced the dial and wins: drop the fresh connection.
		c.lock.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.lock.Unlock()
		return errors.Wrapf(clienterrors.ErrNetwork, "[Channel.Connect] dial %s: %v", c.url, err)
	}

	done := make(chan struct{})
	c.conn = conn
	c.connDone = done
	c.state = StateConnected
	c.retries = 0
	c.lastGood = time.Now()
	c.lock.Unlock()

	c.log.Info().Str("url", c.url).Msg("realtime channel connected")

	go c.readPump(conn, done)
	go c.pingLoop(conn, done)

	for _, hook := range c.snapshotConnectHooks() {
		hook()
	}
	return nil
}

// Close transitions to the terminal closed state, cancelling any pending
// reconnect timer. Idempotent.
func (c *Channel) Close() error {
	c.lock.Lock()
	if c.state == StateClosed {
		c.lock.Unlock()
		return nil
	}
	c.state = StateClosed
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	done := c.connDone
	c.conn = nil
	c.connDone = nil
	c.lock.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		c.writeLock.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeLock.Unlock()
		_ = conn.Close()
	}
	c.failPendingAcks()
	c.log.Info().Msg("realtime channel closed")
	return nil
}

// On registers a handler for a server-pushed event. Multiple handlers per
// event are allowed. The returned unsubscribe is safe to call repeatedly.
func (c *Channel) On(event string, handler Handler) func() {
	c.handlerLock.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][id] = handler
	c.handlerLock.Unlock()

	return func() {
		c.handlerLock.Lock()
		if hs, ok := c.handlers[event]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(c.handlers, event)
			}
		}
		c.handlerLock.Unlock()
	}
}

// OnConnect registers a hook invoked after every successful connect,
// including reconnects. Consumers use it to resync state missed offline.
func (c *Channel) OnConnect(hook func()) func() {
	c.handlerLock.Lock()
	c.nextID++
	id := c.nextID
	c.connectHooks[id] = hook
	c.handlerLock.Unlock()

	return func() {
		c.handlerLock.Lock()
		delete(c.connectHooks, id)
		c.handlerLock.Unlock()
	}
}

// Emit sends an event frame. When the channel is not connected the frame is
// dropped with a warning; nothing is queued. Callers that need delivery
// retry idempotently.
func (c *Channel) Emit(event string, payload interface{}) {
	c.emit(event, payload, "")
}

// EmitWithAck sends an event frame carrying an ack correlation id; ack is
// invoked with the server's reply payload. Pending acks are dropped on
// disconnect.
func (c *Channel) EmitWithAck(event string, payload interface{}, ack Handler) {
	ackID := uuid.New().String()
	c.ackLock.Lock()
	c.acks[ackID] = ack
	c.ackLock.Unlock()
	if !c.emit(event, payload, ackID) {
		c.ackLock.Lock()
		delete(c.acks, ackID)
		c.ackLock.Unlock()
	}
}

func (c *Channel) emit(event string, payload interface{}, ackID string) bool {
	c.lock.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.lock.Unlock()

	if !connected || conn == nil {
		c.log.Warn().Str("event", event).Msg("emit dropped: channel not connected")
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("emit dropped: payload not serializable")
		return false
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame{Event: event, Data: data, AckID: ackID}); err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("emit write failed")
		return false
	}
	return true
}

func (c *Channel) readPump(conn *websocket.Conn, done chan struct{}) {
	defer c.handleDisconnect(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Debug().Msg("server closed the channel")
			} else {
				c.log.Warn().Err(err).Msg("channel read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))

		c.lock.Lock()
		c.lastGood = time.Now()
		c.lock.Unlock()

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}
		if f.Event == eventAck && f.AckID != "" {
			c.dispatchAck(f.AckID, f.Data)
			continue
		}
		c.dispatch(f.Event, f.Data)
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeLock.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeLock.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn, done chan struct{}) {
	c.lock.Lock()
	if c.conn != conn {
		// Close (or a replacement connect) already detached this conn.
		c.lock.Unlock()
		return
	}
	c.conn = nil
	c.connDone = nil
	c.state = StateDisconnected
	c.scheduleReconnectLocked()
	c.lock.Unlock()

	close(done)
	_ = conn.Close()
	c.failPendingAcks()
}

// scheduleReconnectLocked arms the retry timer. Callers hold c.lock; Close
// cancels the timer under the same lock, so a close can never lose the race
// to a scheduled reconnect.
func (c *Channel) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.retries++
	attempt := c.retries
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.lock.Lock()
		c.reconnectTimer = nil
		if c.state == StateClosed {
			c.lock.Unlock()
			return
		}
		c.lock.Unlock()

		c.log.Info().Int("attempt", attempt).Msg("reconnecting realtime channel")
		if err := c.Connect(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("reconnect attempt failed")
		}
	})
}

func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.handlerLock.RLock()
	hs := make([]Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.handlerLock.RUnlock()

	for _, h := range hs {
		h(data)
	}
}

func (c *Channel) snapshotConnectHooks() []func() {
	c.handlerLock.RLock()
	defer c.handlerLock.RUnlock()
	hooks := make([]func(), 0, len(c.connectHooks))
	for _, h := range c.connectHooks {
		hooks = append(hooks, h)
	}
	return hooks
}

func (c *Channel) dispatchAck(ackID string, data json.RawMessage) {
	c.ackLock.Lock()
	ack, ok := c.acks[ackID]
	delete(c.acks, ackID)
	c.ackLock.Unlock()
	if ok && ack != nil {
		ack(data)
	}
}

func (c *Channel) failPendingAcks() {
	c.ackLock.Lock()
	dropped := len(c.acks)
	c.acks = make(map[string]Handler)
	c.ackLock.Unlock()
	if dropped > 0 {
		c.log.Debug().Int("count", dropped).Msg("dropped pending acks on disconnect")
	}
}
