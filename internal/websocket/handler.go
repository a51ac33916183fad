package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, subscriberId, sessionId string) {
	client := &Client{
		Hub:          hub,
		Conn:         c,
		SubscriberId: subscriberId,
		SessionId:    sessionId,
		Send:         make(chan []byte, 256),
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
