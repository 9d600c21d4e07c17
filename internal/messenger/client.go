// Package messenger connects a participant's pipeline to the relay over a
// websocket.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"collabtext/internal/editor"
	"collabtext/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// Options configures a Client.
type Options struct {
	// URL is the relay websocket endpoint, e.g. ws://localhost:3001/ws.
	URL   string
	Codec protocol.Codec
	// Token is sent as a bearer token when set.
	Token string
	Log   *slog.Logger
	// Backoff returns the reconnect policy. Defaults to exponential backoff
	// without a time limit.
	Backoff func() backoff.BackOff
	Dialer  *websocket.Dialer
}

// Client is the messaging collaborator of the dispatch pipeline. Actions
// sent while disconnected are dropped; local editing is unaffected.
type Client struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	handlers  []func(editor.Action)
	reconnect []func()
	out       chan protocol.Envelope
	cancel    context.CancelFunc
	done      chan struct{}
	online    bool

	// initialized is set once the relay's init was delivered in the current
	// Connect lifecycle.
	initialized atomic.Bool
}

func New(opts Options) *Client {
	if opts.Codec == nil {
		opts.Codec = protocol.JSON
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Backoff == nil {
		opts.Backoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts, log: opts.Log}
}

// OnAction registers a handler for actions from other participants. The
// relay's initial snapshot arrives as editor.InitState, once per Connect:
// the init the relay sends after a reconnect is dropped so that local edits
// survive the outage. Handlers run on the client's reader goroutine.
func (c *Client) OnAction(fn func(editor.Action)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// OnReconnect registers fn to run each time the connection is back after
// an outage, once sends are accepted again. It is not called for the first
// connection, nor when no init was received before the outage.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = append(c.reconnect, fn)
}

// Send queues a relayed action. It never blocks.
func (c *Client) Send(a editor.Action) {
	env, err := protocol.ActionEnvelope(a)
	if err != nil {
		c.log.Warn("not sending action", "kind", a.Kind(), "err", err)
		return
	}
	c.enqueue(env)
}

// SendSnapshot queues a snapshot push. It never blocks.
func (c *Client) SendSnapshot(lines editor.Lines) {
	c.enqueue(protocol.SnapshotEnvelope(lines.Clone()))
}

func (c *Client) enqueue(env protocol.Envelope) {
	c.mu.Lock()
	out, online := c.out, c.online
	c.mu.Unlock()
	if out == nil || !online {
		c.log.Debug("offline, dropping message", "type", env.Type)
		return
	}
	select {
	case out <- env:
	default:
		c.log.Warn("send queue full, dropping message", "type", env.Type)
	}
}

// Connect dials the relay and keeps the connection up, reconnecting with
// backoff, until Close is called or ctx is done. The first dial is
// synchronous: its error is returned and nothing is left running.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("messenger: already connected")
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.initialized.Store(false)
	c.mu.Lock()
	c.out = make(chan protocol.Envelope, sendBuffer)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx, conn)
	return nil
}

// Close stops the client and waits for its goroutines.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	c.mu.Lock()
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("codec", c.opts.Codec.Name())
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "bearer "+c.opts.Token)
	}
	conn, res, err := c.opts.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	reconnected := false
	for {
		c.serve(ctx, conn, reconnected)
		reconnected = true
		if ctx.Err() != nil {
			return
		}

		redial := func() error {
			next, err := c.dial(ctx)
			if err != nil {
				return err
			}
			conn = next
			return nil
		}
		notify := func(err error, wait time.Duration) {
			c.log.Warn("relay unreachable, retrying", "err", err, "in", wait)
		}
		if err := backoff.RetryNotify(redial, backoff.WithContext(c.opts.Backoff(), ctx), notify); err != nil {
			if ctx.Err() == nil {
				c.log.Error("giving up on relay", "err", err)
			}
			return
		}
		c.log.Info("reconnected to relay")
	}
}

// serve pumps one connection until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, reconnected bool) {
	c.setOnline(true)
	defer c.setOnline(false)
	if reconnected && c.initialized.Load() {
		c.mu.Lock()
		hs := append([]func(){}, c.reconnect...)
		c.mu.Unlock()
		for _, h := range hs {
			h()
		}
	}

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(conn) }()

	frame := websocket.TextMessage
	if c.opts.Codec.Binary() {
		frame = websocket.BinaryMessage
	}
	defer conn.Close()
	for {
		select {
		case env := <-c.out:
			data, err := c.opts.Codec.Marshal(env)
			if err != nil {
				c.log.Error("encode message", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(frame, data); err != nil {
				c.log.Warn("write to relay failed", "err", err)
				return
			}
		case err := <-readErr:
			c.log.Warn("relay connection lost", "err", err)
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env protocol.Envelope
		if err := c.opts.Codec.Unmarshal(data, &env); err != nil {
			c.log.Warn("dropping malformed message", "err", err)
			continue
		}
		switch env.Type {
		case protocol.TypeInit:
			if !c.initialized.CompareAndSwap(false, true) {
				c.log.Debug("ignoring init after reconnect", "lines", len(env.Lines))
				continue
			}
			c.deliver(editor.InitState{Lines: env.Lines})
		case protocol.TypeAction:
			if env.Action == nil {
				continue
			}
			a, err := env.Action.ToEditor()
			if err != nil {
				c.log.Warn("dropping action", "err", err)
				continue
			}
			c.deliver(a)
		default:
			c.log.Debug("ignoring message", "type", env.Type)
		}
	}
}

func (c *Client) deliver(a editor.Action) {
	c.mu.Lock()
	hs := append([]func(editor.Action){}, c.handlers...)
	c.mu.Unlock()
	for _, h := range hs {
		h(a)
	}
}

func (c *Client) setOnline(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}
