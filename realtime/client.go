package realtime

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufferSize = 256
)

// Client is one live authenticated connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	role   string
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, role string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		role:   role,
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// enqueue hands an encoded event to the write pump without blocking. A
// full buffer means the reader is dead or hopelessly behind; the failure
// is isolated to this connection.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendEvent(evt Event) {
	payload, err := marshalEvent(evt)
	if err != nil {
		log.Printf("error marshaling %s event for user %s: %v", evt.Type, c.userID, err)
		return
	}
	if !c.enqueue(payload) {
		log.Printf("send buffer full for user %s, dropping %s event", c.userID, evt.Type)
	}
}

func (c *Client) sendError(message string, status int) {
	c.sendEvent(Event{Type: EventError, Data: ErrorData{Message: message, Status: status}})
}

// Run starts both pumps and blocks until the connection dies.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read error for user %s: %v", c.userID, err)
			}
			return
		}

		frame, err := DecodeFrame(raw)
		if err != nil {
			c.sendError(err.Error(), 400)
			continue
		}
		c.hub.HandleFrame(c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("write error for user %s: %v", c.userID, err)
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
