package fanout

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client связывает подписку с WebSocket-соединением
type Client struct {
	conn    *websocket.Conn
	sub     *Subscription
	initial []Event
	logger  *logrus.Logger
}

func NewClient(conn *websocket.Conn, sub *Subscription, initial []Event, logger *logrus.Logger) *Client {
	return &Client{conn: conn, sub: sub, initial: initial, logger: logger}
}

// Run блокируется до закрытия соединения или подписки
func (c *Client) Run() {
	go c.readPump()
	c.writePump()
}

// readPump нужен только для обработки pong и обнаружения закрытия со стороны клиента
func (c *Client) readPump() {
	defer c.sub.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithFields(logrus.Fields{
					"component":    "fanout",
					"subscription": c.sub.ID,
				}).WithError(err).Warn("WebSocket read failed")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sub.Close()
		c.conn.Close()
	}()

	for _, ev := range c.initial {
		if err := c.write(ev); err != nil {
			return
		}
	}
	c.initial = nil

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				reason := "subscription closed"
				if c.sub.Dropped() {
					reason = "subscriber too slow"
				}
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason))
				return
			}
			if err := c.write(ev); err != nil {
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

func (c *Client) write(ev Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}
