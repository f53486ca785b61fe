package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Live-update errors
var (
	ErrNoLiveConnection     = errors.New("no live connection for room")
	ErrConnectionBufferFull = errors.New("connection buffer full")
)

// WebSocketManager owns all live widget and dashboard connections. Created
// once by the process bootstrap and injected where needed; there is no
// package-level singleton.
type WebSocketManager struct {
	// Map of room key to map of connection ID to connection
	rooms     map[string]map[string]*WebSocketConnection
	mu        sync.RWMutex
	broadcast chan roomMessage
}

// WebSocketConnection represents a single live connection: a widget visitor
// or a dashboard listener.
type WebSocketConnection struct {
	Conn      *websocket.Conn
	ConnID    string
	ChannelID string
	VisitorID string // empty for dashboard listeners
	Send      chan []byte
}

type roomMessage struct {
	room string
	data []byte
}

// LiveEvent is the structure published to live-update rooms. It carries the
// same shape as a message log entry.
type LiveEvent struct {
	Type      string      `json:"type"`
	ChannelID string      `json:"channel_id"`
	SenderID  string      `json:"sender_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// NewWebSocketManager creates the manager and starts its broadcast loop.
func NewWebSocketManager() *WebSocketManager {
	m := &WebSocketManager{
		rooms:     make(map[string]map[string]*WebSocketConnection),
		broadcast: make(chan roomMessage, 100),
	}
	go m.handleBroadcast()
	return m
}

// RoomKey scopes a conversation room to (channel id, sender id). A bare
// channel id addresses the channel-wide dashboard room.
func RoomKey(channelID, senderID string) string {
	if senderID == "" {
		return channelID
	}
	return channelID + ":" + senderID
}

// RegisterConnection adds a connection to its room.
func (m *WebSocketManager) RegisterConnection(conn *WebSocketConnection) {
	room := RoomKey(conn.ChannelID, conn.VisitorID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[room] == nil {
		m.rooms[room] = make(map[string]*WebSocketConnection)
	}
	m.rooms[room][conn.ConnID] = conn

	slog.Info("WebSocket connection registered",
		"room", room,
		"connID", conn.ConnID,
		"roomConnections", len(m.rooms[room]))
}

// UnregisterConnection removes a connection from its room.
func (m *WebSocketManager) UnregisterConnection(channelID, visitorID, connID string) {
	room := RoomKey(channelID, visitorID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if roomConns, exists := m.rooms[room]; exists {
		if conn, exists := roomConns[connID]; exists {
			close(conn.Send)
			delete(roomConns, connID)

			slog.Info("WebSocket connection unregistered",
				"room", room,
				"connID", connID,
				"remainingConnections", len(roomConns))

			if len(roomConns) == 0 {
				delete(m.rooms, room)
			}
		}
	}
}

// Publish sends an event to the (channel, sender) room. Returns
// ErrNoLiveConnection when no transport is currently attached, so the web
// adapter can report the send as failed.
func (m *WebSocketManager) Publish(channelID, senderID string, event LiveEvent) error {
	room := RoomKey(channelID, senderID)

	event.ChannelID = channelID
	event.SenderID = senderID
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m.mu.RLock()
	roomConns, exists := m.rooms[room]
	m.mu.RUnlock()

	if !exists || len(roomConns) == 0 {
		return ErrNoLiveConnection
	}

	m.broadcast <- roomMessage{room: room, data: jsonData}
	return nil
}

// BroadcastToChannel sends an event to the channel-wide dashboard room.
// Best effort: a channel without listeners is not an error.
func (m *WebSocketManager) BroadcastToChannel(channelID string, event LiveEvent) {
	event.ChannelID = channelID
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal live event", "error", err)
		return
	}

	m.broadcast <- roomMessage{room: RoomKey(channelID, ""), data: jsonData}
}

// handleBroadcast fans messages out to room connections.
func (m *WebSocketManager) handleBroadcast() {
	for message := range m.broadcast {
		m.mu.RLock()
		roomConns := m.rooms[message.room]
		for _, conn := range roomConns {
			select {
			case conn.Send <- message.data:
				// Message queued
			default:
				slog.Warn("WebSocket connection buffer full",
					"room", message.room,
					"connID", conn.ConnID)
			}
		}
		m.mu.RUnlock()
	}
}

// ConnectionCount returns the number of live connections in a room.
func (m *WebSocketManager) ConnectionCount(channelID, visitorID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms[RoomKey(channelID, visitorID)])
}
