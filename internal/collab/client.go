package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; note payloads ride along with
	// mutation events, so this is larger than a chat line needs
	maxMessageSize = 32 << 10

	// Outgoing frame queue per connection
	sendBufferSize = 256
)

var ErrClientDisconnected = errors.New("client disconnected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// wireConn is the subset of *websocket.Conn the client uses, extracted so
// tests can substitute an in-memory connection.
type wireConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

var _ wireConn = (*websocket.Conn)(nil)

// Client wraps one live WebSocket connection. The read pump feeds inbound
// events to the hub; the write pump drains the send queue and keeps the
// transport alive with periodic pings.
type Client struct {
	id       string
	identity Identity
	hub      *Hub
	conn     wireConn
	send     chan []byte
	logger   *zap.SugaredLogger

	// Connection state management
	ctx    context.Context
	cancel context.CancelFunc
	closed int32 // atomic flag, set once on shutdown

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn wireConn, identity Identity) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:       uuid.New().String(),
		identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		logger:   hub.logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the opaque connection identifier assigned at connect time.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the user reference attached to the connection.
func (c *Client) Identity() Identity {
	return c.identity
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
	}
}

// Send queues an outbound message. Delivery is best-effort: a client whose
// send buffer is full is considered stalled and gets disconnected rather
// than blocking the rest of the room.
func (c *Client) Send(message *Message) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue adds a frame to the send queue. The queue is never closed; teardown
// cancels the client context and the write pump exits on it, so a Send racing
// a disconnect fails with an error instead of hitting a closed channel.
func (c *Client) enqueue(frame []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrClientDisconnected
	default:
		c.logger.Warnw("send buffer full, closing client", "connectionID", c.id, "user", c.identity.ID)
		c.close()
		return ErrClientDisconnected
	}
}

func (c *Client) sendError(code, message string) {
	c.Send(NewErrorMessage(code, message))
}

func (c *Client) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
		case <-time.After(5 * time.Second):
			c.logger.Warnw("timeout sending unregister request", "connectionID", c.id)
		}

		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Errorw("websocket read error", "connectionID", c.id, "error", err)
			} else {
				c.logger.Debugw("websocket connection closed", "connectionID", c.id, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.logger.Debugw("failed to unmarshal frame", "connectionID", c.id, "error", err)
			c.sendError("INVALID_MESSAGE", "invalid message format")
			continue
		}
		if err := msg.Validate(); err != nil {
			c.sendError("INVALID_MESSAGE", err.Error())
			continue
		}
		msg.Timestamp = time.Now().Unix()

		select {
		case c.hub.inbound <- &clientMessage{client: c, message: &msg}:
		case <-time.After(5 * time.Second):
			c.logger.Warnw("timeout sending message to hub", "connectionID", c.id)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case frame := <-c.send:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debugw("websocket write error", "connectionID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("ping failed", "connectionID", c.id, "error", err)
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and hands the
// resulting client to the hub.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Errorw("websocket upgrade failed", "user", identity.ID, "error", err)
		return
	}

	client := NewClient(hub, conn, identity)
	hub.logger.Infow("websocket connection established", "connectionID", client.id, "user", identity.ID)

	select {
	case hub.register <- client:
	case <-time.After(5 * time.Second):
		hub.logger.Errorw("timeout registering client", "connectionID", client.id)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
