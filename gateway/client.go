package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vyre-gateway/domain/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live websocket connection. It owns the transport handle and
// implements contract.EventSink: deliveries are framed and pushed onto the
// buffered send channel, never blocking the producer.
type Client struct {
	id       string
	userID   string
	username string
	conn     *websocket.Conn
	log      *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id, userID, username string, conn *websocket.Conn, sendBufferSize int, log *slog.Logger) *Client {
	return &Client{
		id:       id,
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		log:      log,
	}
}

// Consume frames the event and queues it for the write pump. A full send
// buffer drops the event for this connection only: one slow consumer must
// not stall fan-out for the rest of the room.
func (c *Client) Consume(_ context.Context, e event.Outbound) error {
	return c.push(outboundFrame{Type: e.EventType(), Data: e})
}

// reply sends a correlated frame (ack, error, pong, history) back to this
// connection only.
func (c *Client) reply(eventType, ref string, data event.Outbound) {
	if err := c.push(outboundFrame{Type: eventType, Ref: ref, Data: data}); err != nil {
		c.log.Debug("Reply dropped", "connection_id", c.id, "type", eventType, "error", err)
	}
}

// push queues one frame. A broadcaster may still hold this sink after
// teardown started, so the closed check and the channel send happen under
// the same lock close() takes: a late delivery gets an error, never a send
// on a closed channel.
func (c *Client) push(frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s is closed", c.id)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", c.id)
	}
}

// readPump reads frames off the connection and dispatches them in arrival
// order. It runs in the handshake goroutine; returning triggers teardown.
func (c *Client) readPump(ctx context.Context, g *Gateway) {
	defer g.drop(c)

	c.conn.SetReadLimit(g.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn(fmt.Sprintf("Unexpected close for %s: %v", c.userID, err))
			}
			return
		}
		g.handleFrame(ctx, c, raw)
	}
}

// writePump owns all writes to the connection: queued frames plus periodic
// transport-level pings keeping the read deadline alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// close shuts the send channel exactly once; the write pump then closes the
// underlying connection.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
