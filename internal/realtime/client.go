// Package realtime is the client for the hosted realtime channel: one
// websocket per meeting carrying participant, meeting, and waiting-room
// table changes plus broadcast events. All payloads are advisory; consumers
// typically react by re-fetching authoritative state over REST.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"meetsolis-client/internal/retry"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// ErrNotConnected is returned by Broadcast when the channel is down.
var ErrNotConnected = errors.New("realtime: not connected")

// Dialer abstracts the websocket dial for tests.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

func defaultDialer(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// Client subscribes to one meeting channel and dispatches messages to
// registered callbacks. A dropped connection is re-dialed with the bounded
// backoff policy; when attempts are exhausted the client stays disconnected
// and consumers fall back to their polling paths.
type Client struct {
	url       string
	meetingID string
	dial      Dialer
	policy    *retry.Policy

	mu        sync.RWMutex
	conn      *websocket.Conn
	changeFns map[string][]func(ChangeEvent)
	bcastFns  map[string][]func(json.RawMessage)
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient builds a client for the given channel endpoint and meeting.
func NewClient(url, meetingID string) *Client {
	return &Client{
		url:       url,
		meetingID: meetingID,
		dial:      defaultDialer,
		policy:    retry.NewPolicy(),
		changeFns: make(map[string][]func(ChangeEvent)),
		bcastFns:  make(map[string][]func(json.RawMessage)),
	}
}

// SetDialer replaces the websocket dialer. Used by tests.
func (c *Client) SetDialer(d Dialer) {
	c.dial = d
}

// OnChange registers a callback for changes to the given table.
func (c *Client) OnChange(table string, fn func(ChangeEvent)) {
	c.mu.Lock()
	c.changeFns[table] = append(c.changeFns[table], fn)
	c.mu.Unlock()
}

// OnBroadcast registers a callback for the named broadcast event.
func (c *Client) OnBroadcast(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	c.bcastFns[event] = append(c.bcastFns[event], fn)
	c.mu.Unlock()
}

// Connect dials the channel and starts the read loop. It returns once the
// initial connection is established (or fails through the backoff policy).
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.connect(runCtx); err != nil {
		cancel()
		return err
	}

	go c.readLoop(runCtx)
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	return c.policy.Do(ctx, func() error {
		conn, err := c.dial(ctx, c.url+"?meeting="+c.meetingID)
		if err != nil {
			log.Warn().Err(err).Str("meeting", c.meetingID).Msg("Realtime channel dial failed")
			return err
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	})
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		c.mu.RLock()
		conn := c.conn
		closed := c.closed
		c.mu.RUnlock()
		if closed || conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("meeting", c.meetingID).Msg("Realtime channel read failed, reconnecting")
			if rerr := c.connect(ctx); rerr != nil {
				log.Error().Err(rerr).Str("meeting", c.meetingID).
					Msg("Realtime channel reconnect exhausted, relying on polling fallback")
				return
			}
			continue
		}

		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Msg("Ignoring malformed realtime message")
		return
	}

	switch msg.Type {
	case "change":
		c.mu.RLock()
		fns := append([]func(ChangeEvent){}, c.changeFns[msg.Table]...)
		c.mu.RUnlock()
		ev := ChangeEvent{Table: msg.Table, Event: msg.Event, Payload: msg.Payload}
		for _, fn := range fns {
			fn(ev)
		}
	case "broadcast":
		c.mu.RLock()
		fns := append([]func(json.RawMessage){}, c.bcastFns[msg.Event]...)
		c.mu.RUnlock()
		for _, fn := range fns {
			fn(msg.Payload)
		}
	}
}

// Broadcast publishes an event on the meeting channel. Used by the legacy
// mesh transport to exchange session descriptions and ICE candidates.
func (c *Client) Broadcast(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := Message{Type: "broadcast", Event: event, Payload: raw}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Close unsubscribes and tears the connection down. Safe to call more than
// once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(writeWait):
		}
	}
	return nil
}
