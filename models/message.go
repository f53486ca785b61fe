package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message log lifecycle statuses.
const (
	StatusReceived    = "received"
	StatusProcessed   = "processed"
	StatusReplied     = "replied"
	StatusRepliedAI   = "replied_ai"
	StatusProcessedAI = "processed_ai"
	StatusFailed      = "failed"
	StatusIgnored     = "ignored"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Reply payload types.
const (
	ReplyText  = "text"
	ReplyImage = "image"
	ReplyCard  = "card"
)

// MessageLog is an immutable record of one inbound or outbound message.
// Append-only; only the status field transitions on the same record within a
// single event's processing.
type MessageLog struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID     string             `bson:"event_id,omitempty" json:"event_id,omitempty"` // correlates entries of one inbound event
	ChannelID   string             `bson:"channel_id" json:"channel_id"`
	ChannelKind string             `bson:"channel_kind" json:"channel_kind"` // instagram|web
	SenderID    string             `bson:"sender_id" json:"sender_id"`
	SenderName  string             `bson:"sender_name,omitempty" json:"sender_name,omitempty"`
	Direction   string             `bson:"direction" json:"direction"` // in|out
	Kind        string             `bson:"kind" json:"kind"`           // dm|comment
	PostID      string             `bson:"post_id,omitempty" json:"post_id,omitempty"`
	CommentID   string             `bson:"comment_id,omitempty" json:"comment_id,omitempty"`
	Text        string             `bson:"text" json:"text"`
	MessageType string             `bson:"message_type" json:"message_type"` // text|image|card
	MediaURL    string             `bson:"media_url,omitempty" json:"media_url,omitempty"`
	Cards       []Card             `bson:"cards,omitempty" json:"cards,omitempty"`
	IsBot       bool               `bson:"is_bot" json:"is_bot"`
	Status      string             `bson:"status" json:"status"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// InboundEvent is the normalized queue payload for one inbound message or
// comment. Serialized as JSON onto the Redis work queue.
type InboundEvent struct {
	EventID    string `json:"event_id"`
	ChannelID  string `json:"channel_id"`
	Platform   string `json:"platform"` // instagram|web
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Text       string `json:"text"`
	Kind       string `json:"kind"` // dm|comment
	PostID     string `json:"post_id,omitempty"`
	CommentID  string `json:"comment_id,omitempty"`
	IsEcho     bool   `json:"is_echo,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
