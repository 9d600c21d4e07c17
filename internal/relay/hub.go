package relay

import (
	"context"
	"log/slog"
	"sync"

	"collabtext/internal/editor"
	"collabtext/internal/protocol"
)

// Hub maintains the set of connected participants of one document.
type Hub struct {
	broker Broker
	log    *slog.Logger

	register   chan *Client
	unregister chan *Client
	ready      chan struct{}
	done       chan struct{}

	// clients is owned by Run.
	clients map[*Client]bool

	snapMu   sync.RWMutex
	snapshot editor.Lines
}

// NewHub returns a hub whose snapshot starts as initial.
func NewHub(broker Broker, initial editor.Lines, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		broker:     broker,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		snapshot:   initial.Clone(),
	}
}

// Snapshot returns the last stored line sequence.
func (h *Hub) Snapshot() editor.Lines {
	h.snapMu.RLock()
	defer h.snapMu.RUnlock()
	return h.snapshot.Clone()
}

func (h *Hub) setSnapshot(lines editor.Lines) {
	if len(lines) == 0 {
		return
	}
	h.snapMu.Lock()
	h.snapshot = lines.Clone()
	h.snapMu.Unlock()
}

// Ready is closed once Run has subscribed to the broker.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	inbound, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	close(h.ready)

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			c.send <- protocol.InitEnvelope(h.Snapshot())
			h.log.Info("client registered", "client", c.id, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("client unregistered", "client", c.id, "clients", len(h.clients))
			}

		case env := <-inbound:
			switch env.Type {
			case protocol.TypeAction:
				h.broadcast(env)
			case protocol.TypeSnapshot:
				h.setSnapshot(env.Lines)
			}

		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return nil
		}
	}
}

// broadcast sends env to every client except its sender. A client whose
// queue is full is dropped.
func (h *Hub) broadcast(env protocol.Envelope) {
	for c := range h.clients {
		if c.id == env.Sender {
			continue
		}
		select {
		case c.send <- env:
		default:
			close(c.send)
			delete(h.clients, c)
			h.log.Warn("dropping slow client", "client", c.id)
		}
	}
}

// join adds c. It reports false when the hub is no longer running.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// publish hands a message from c to the broker.
func (h *Hub) publish(ctx context.Context, c *Client, env protocol.Envelope) {
	env.Sender = c.id
	if err := h.broker.Publish(ctx, env); err != nil {
		h.log.Error("publish failed", "client", c.id, "type", env.Type, "err", err)
	}
}
