package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roasbeef/agentruntime/internal/logging"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 16

	sendBufferSize = 256
)

// client is a single gateway WebSocket connection: one readPump decoding
// InboundFrames into control-plane calls, one writePump serializing
// OutboundFrames (state updates, activity events, acks, errors) back out.
// Modeled directly on the teacher's Hub/Client split, generalized from its
// fixed "agent id" association to an arbitrary set of subscriptions a
// single connection can hold concurrently.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	log  logging.Logger

	send chan OutboundFrame

	mu            sync.Mutex
	closed        bool
	subscriptions map[string]context.CancelFunc
}

func newClient(hub *Hub, conn *websocket.Conn, log logging.Logger) *client {
	return &client{
		hub:           hub,
		conn:          conn,
		log:           log,
		send:          make(chan OutboundFrame, sendBufferSize),
		subscriptions: make(map[string]context.CancelFunc),
	}
}

// enqueue queues an outbound frame, dropping it if the client's send
// buffer is already full rather than blocking the hub's dispatch loop.
func (c *client) enqueue(frame OutboundFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.log.WarnS(context.Background(), "gateway: client send buffer full, dropping frame",
			"frame_type", frame.Type)
	}
}

func (c *client) trackSubscription(agentRuntimeID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.subscriptions[agentRuntimeID]; ok {
		prev()
	}
	c.subscriptions[agentRuntimeID] = cancel
}

func (c *client) stopSubscription(agentRuntimeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel, ok := c.subscriptions[agentRuntimeID]
	if !ok {
		return false
	}
	cancel()
	delete(c.subscriptions, agentRuntimeID)

	return true
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subscriptions
	c.subscriptions = nil
	close(c.send)
	c.mu.Unlock()

	for _, cancel := range subs {
		cancel()
	}
	c.conn.Close()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.log.WarnS(context.Background(), "gateway: read error", "err", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(errorFrame(ErrParseError, err.Error()))
			continue
		}

		c.hub.dispatch(c, frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(frame)
			if err != nil {
				c.log.ErrorS(context.Background(), "gateway: marshal error", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorFrame(code, message string) OutboundFrame {
	return OutboundFrame{
		Type: TypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
