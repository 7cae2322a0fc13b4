package signaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okieraised/greenhouse-agent/internal/common"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
)

// WebsocketClient is one dashboard connection. Clients only receive; inbound
// frames other than control frames are discarded.
type WebsocketClient struct {
	ID        uuid.UUID
	Conn      *websocket.Conn
	send      chan common.NotificationMessage
	hub       *WebsocketHub
	logger    *log.Logger
	closeOnce sync.Once
}

func NewWebsocketClient(id uuid.UUID, conn *websocket.Conn, hub *WebsocketHub) *WebsocketClient {
	return &WebsocketClient{
		ID:     id,
		Conn:   conn,
		send:   make(chan common.NotificationMessage, 16),
		hub:    hub,
		logger: hub.logger,
	}
}

// Read blocks until the peer goes away, then unregisters the client.
func (c *WebsocketClient) Read() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Info(errors.Wrap(err, "failed to set read deadline").Error())
	}
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info(errors.Wrap(err, fmt.Sprintf("client [%s] read failed", c.ID)).Error())
			}
			return
		}
	}
}

// Write pumps queued notifications and pings until the hub closes the queue.
func (c *WebsocketClient) Write() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Info(errors.Wrap(err, "failed to set write deadline").Error())
			}
			if !ok {
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug(errors.Wrap(err, "failed to send close message").Error())
				}
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.Info(errors.Wrap(err, "failed to send message").Error())
				return
			}
		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Info(errors.Wrap(err, "failed to set write deadline").Error())
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(errors.Wrap(err, fmt.Sprintf("client [%s] ping error", c.ID.String())).Error())
				return
			}
		}
	}
}

func (c *WebsocketClient) Close() {
	c.closeOnce.Do(func() {
		_ = c.Conn.Close()
	})
}
