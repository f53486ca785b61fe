package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "ch-1:visitor-1", RoomKey("ch-1", "visitor-1"))
	assert.Equal(t, "ch-1", RoomKey("ch-1", ""))
}

func TestPublishWithoutConnection(t *testing.T) {
	m := NewWebSocketManager()

	err := m.Publish("ch-1", "visitor-1", LiveEvent{Type: "bot_reply"})
	assert.ErrorIs(t, err, ErrNoLiveConnection)
}

func TestRegisterAndCountConnections(t *testing.T) {
	m := NewWebSocketManager()

	conn := &WebSocketConnection{
		ConnID:    "conn-1",
		ChannelID: "ch-1",
		VisitorID: "visitor-1",
		Send:      make(chan []byte, 1),
	}
	m.RegisterConnection(conn)
	assert.Equal(t, 1, m.ConnectionCount("ch-1", "visitor-1"))

	// A second tab for the same visitor shares the room
	conn2 := &WebSocketConnection{
		ConnID:    "conn-2",
		ChannelID: "ch-1",
		VisitorID: "visitor-1",
		Send:      make(chan []byte, 1),
	}
	m.RegisterConnection(conn2)
	assert.Equal(t, 2, m.ConnectionCount("ch-1", "visitor-1"))

	m.UnregisterConnection("ch-1", "visitor-1", "conn-1")
	m.UnregisterConnection("ch-1", "visitor-1", "conn-2")
	assert.Zero(t, m.ConnectionCount("ch-1", "visitor-1"))
}

func TestPublishDeliversToRoom(t *testing.T) {
	m := NewWebSocketManager()

	conn := &WebSocketConnection{
		ConnID:    "conn-1",
		ChannelID: "ch-1",
		VisitorID: "visitor-1",
		Send:      make(chan []byte, 4),
	}
	m.RegisterConnection(conn)

	err := m.Publish("ch-1", "visitor-1", LiveEvent{Type: "bot_reply", Data: "hi"})
	assert.NoError(t, err)

	data := <-conn.Send
	assert.Contains(t, string(data), `"bot_reply"`)
	assert.Contains(t, string(data), `"ch-1"`)
}
