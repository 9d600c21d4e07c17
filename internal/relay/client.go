package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabtext/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Client is one participant connection.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	codec protocol.Codec
	id    string
	send  chan protocol.Envelope
	log   *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec) *Client {
	id := uuid.NewString()
	return &Client{
		hub:   hub,
		conn:  conn,
		codec: codec,
		id:    id,
		send:  make(chan protocol.Envelope, sendBuffer),
		log:   hub.log.With("client", id),
	}
}

// readPump forwards messages from the connection to the hub until the
// connection fails.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("client connection lost", "err", err)
			}
			return
		}
		var env protocol.Envelope
		if err := c.codec.Unmarshal(data, &env); err != nil {
			c.log.Warn("dropping malformed message", "err", err)
			continue
		}
		switch env.Type {
		case protocol.TypeAction:
			if env.Action == nil {
				c.log.Warn("dropping empty action")
				continue
			}
			if _, err := env.Action.ToEditor(); err != nil {
				c.log.Warn("dropping action", "err", err)
				continue
			}
			c.hub.publish(ctx, c, protocol.Envelope{Type: protocol.TypeAction, Action: env.Action})
		case protocol.TypeSnapshot:
			c.hub.publish(ctx, c, protocol.SnapshotEnvelope(env.Lines))
		default:
			c.log.Warn("dropping message of unexpected type", "type", env.Type)
		}
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frame := websocket.TextMessage
	if c.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := c.codec.Marshal(env)
			if err != nil {
				c.log.Error("encode message", "err", err)
				continue
			}
			if err := c.conn.WriteMessage(frame, data); err != nil {
				c.log.Warn("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
