package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"instagram-bot/models"
	"instagram-bot/services"
)

// WidgetMessage is a frame received from the web chat widget.
type WidgetMessage struct {
	Type string `json:"type"` // message|ping
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// EventEnqueuer feeds normalized events into the work queue.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, event models.InboundEvent) error
}

// WidgetHandler serves the embeddable web chat widget: each visitor holds a
// websocket that both delivers their messages into the pipeline and receives
// bot replies for their (channel, visitor) room.
type WidgetHandler struct {
	Manager *services.WebSocketManager
	Queue   EventEnqueuer
}

// Upgrade gates the HTTP connection for websocket upgrade and resolves the
// channel before any socket is opened.
func (h *WidgetHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	channelID := c.Params("channelID")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel, err := services.GetChannelByExternalID(ctx, channelID)
	if err != nil {
		slog.Error("Widget channel lookup failed", "channelID", channelID, "error", err)
		return fiber.ErrInternalServerError
	}
	if channel == nil || channel.Kind != models.ChannelWeb {
		return fiber.ErrNotFound
	}

	visitorID := c.Query("visitor_id")
	if visitorID == "" {
		visitorID = uuid.NewString()
	}

	c.Locals("channel_id", channelID)
	c.Locals("visitor_id", visitorID)
	c.Locals("allowed", true)
	return c.Next()
}

// Serve runs the widget connection until the visitor disconnects.
func (h *WidgetHandler) Serve(c *websocket.Conn) {
	channelID, _ := c.Locals("channel_id").(string)
	visitorID, _ := c.Locals("visitor_id").(string)
	if channelID == "" || visitorID == "" {
		c.Close()
		return
	}

	conn := &services.WebSocketConnection{
		Conn:      c,
		ConnID:    uuid.NewString(),
		ChannelID: channelID,
		VisitorID: visitorID,
		Send:      make(chan []byte, 256),
	}

	h.Manager.RegisterConnection(conn)
	defer h.Manager.UnregisterConnection(channelID, visitorID, conn.ConnID)

	welcome := map[string]interface{}{
		"type":       "connected",
		"visitor_id": visitorID,
	}
	if data, err := json.Marshal(welcome); err == nil {
		c.WriteMessage(websocket.TextMessage, data)
	}

	go writePump(conn)
	h.readPump(conn)
}

// readPump consumes visitor frames. Chat messages are normalized onto the
// work queue exactly like webhook events.
func (h *WidgetHandler) readPump(conn *services.WebSocketConnection) {
	defer conn.Conn.Close()

	conn.Conn.SetReadLimit(64 * 1024)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("Widget socket read error", "error", err)
			}
			return
		}

		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg WidgetMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Malformed widget frame dropped", "channelID", conn.ChannelID)
			continue
		}

		switch msg.Type {
		case "ping":
			if pong, err := json.Marshal(map[string]string{"type": "pong"}); err == nil {
				conn.Send <- pong
			}

		case "message":
			if msg.Text == "" {
				continue
			}
			h.enqueueVisitorMessage(conn, msg)

		default:
			slog.Warn("Unknown widget frame type", "type", msg.Type, "channelID", conn.ChannelID)
		}
	}
}

func (h *WidgetHandler) enqueueVisitorMessage(conn *services.WebSocketConnection, msg WidgetMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := models.InboundEvent{
		EventID:    uuid.NewString(),
		ChannelID:  conn.ChannelID,
		Platform:   models.ChannelWeb,
		SenderID:   conn.VisitorID,
		SenderName: msg.Name,
		Text:       msg.Text,
		Kind:       models.EventDM,
		Timestamp:  time.Now().UnixMilli(),
	}

	if err := h.Queue.Enqueue(ctx, event); err != nil {
		slog.Error("Failed to enqueue widget message",
			"channelID", conn.ChannelID,
			"visitorID", conn.VisitorID,
			"error", err)
		if errFrame, marshalErr := json.Marshal(map[string]string{
			"type":  "error",
			"error": "message could not be accepted, try again",
		}); marshalErr == nil {
			conn.Send <- errFrame
		}
	}
}

// DashboardHandler attaches an authenticated dashboard listener to a
// channel-wide live-update room.
type DashboardHandler struct {
	Manager *services.WebSocketManager
}

// Upgrade gates the dashboard socket behind the session check done by the
// auth middleware.
func (h *DashboardHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	tenantID, _ := c.Locals("tenant_id").(string)
	if tenantID == "" {
		return fiber.ErrUnauthorized
	}

	channelID := c.Params("channelID")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel, err := services.GetChannelByExternalID(ctx, channelID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if channel == nil || channel.TenantID != tenantID {
		return fiber.ErrNotFound
	}

	c.Locals("channel_id", channelID)
	c.Locals("allowed", true)
	return c.Next()
}

// Serve runs the dashboard connection until the listener disconnects.
func (h *DashboardHandler) Serve(c *websocket.Conn) {
	channelID, _ := c.Locals("channel_id").(string)
	if channelID == "" {
		c.Close()
		return
	}

	conn := &services.WebSocketConnection{
		Conn:      c,
		ConnID:    uuid.NewString(),
		ChannelID: channelID,
		Send:      make(chan []byte, 256),
	}

	h.Manager.RegisterConnection(conn)
	defer h.Manager.UnregisterConnection(channelID, "", conn.ConnID)

	go writePump(conn)

	// Dashboard sockets are listen-only; drain frames to run control handling
	conn.Conn.SetReadLimit(4 * 1024)
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump flushes queued frames to the socket and keeps it alive with
// periodic pings.
func writePump(conn *services.WebSocketConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write websocket frame", "error", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
