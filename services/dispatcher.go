package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"instagram-bot/models"
)

// Dispatcher errors
var (
	ErrUnknownChannelKind   = errors.New("no adapter registered for channel kind")
	ErrUnsupportedReplyType = errors.New("unsupported reply type")
)

// Reply is one outbound message in channel-neutral form. Type selects which
// content fields apply.
type Reply struct {
	Type      string          `json:"type"` // text|image|card
	Text      string          `json:"text,omitempty"`
	Buttons   []models.Button `json:"buttons,omitempty"`
	MediaURL  string          `json:"media_url,omitempty"`
	MediaType string          `json:"media_type,omitempty"` // image|video|audio
	Cards     []models.Card   `json:"cards,omitempty"`
}

// ChannelAdapter sends a reply over one channel kind. Adapters know nothing
// about quotas, triggers or CRM; adding a channel kind means adding an
// adapter, not touching upstream components.
type ChannelAdapter interface {
	Kind() string
	Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply Reply) error
}

// AdapterRegistry selects the adapter for a channel kind.
type AdapterRegistry struct {
	adapters map[string]ChannelAdapter
}

// NewAdapterRegistry registers the given adapters by kind.
func NewAdapterRegistry(adapters ...ChannelAdapter) *AdapterRegistry {
	registry := &AdapterRegistry{adapters: make(map[string]ChannelAdapter)}
	for _, adapter := range adapters {
		registry.adapters[adapter.Kind()] = adapter
	}
	return registry
}

// Adapter returns the adapter registered for a kind.
func (r *AdapterRegistry) Adapter(kind string) (ChannelAdapter, bool) {
	adapter, ok := r.adapters[kind]
	return adapter, ok
}

// Send dispatches a reply through the adapter matching the channel's kind.
func (r *AdapterRegistry) Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply Reply) error {
	adapter, ok := r.adapters[channel.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannelKind, channel.Kind)
	}
	return adapter.Send(ctx, channel, recipientID, reply)
}

// InstagramAdapter sends replies through the Instagram messaging API using
// the channel's access token.
type InstagramAdapter struct{}

func (a *InstagramAdapter) Kind() string { return models.ChannelInstagram }

func (a *InstagramAdapter) Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply Reply) error {
	switch reply.Type {
	case models.ReplyText:
		return SendInstagramText(ctx, recipientID, reply.Text, reply.Buttons, channel.AccessToken)
	case models.ReplyImage:
		return SendInstagramMedia(ctx, recipientID, reply.MediaType, reply.MediaURL, channel.AccessToken)
	case models.ReplyCard:
		return SendInstagramCards(ctx, recipientID, reply.Cards, channel.AccessToken)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedReplyType, reply.Type)
	}
}

// WebAdapter delivers replies to the widget's live-update room. The send
// succeeds only while a live transport is attached to the room.
type WebAdapter struct {
	Manager *WebSocketManager
}

func (a *WebAdapter) Kind() string { return models.ChannelWeb }

func (a *WebAdapter) Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply Reply) error {
	switch reply.Type {
	case models.ReplyText, models.ReplyImage, models.ReplyCard:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedReplyType, reply.Type)
	}

	err := a.Manager.Publish(channel.ChannelID, recipientID, LiveEvent{
		Type: "bot_reply",
		Data: map[string]interface{}{
			"direction":    models.DirectionOut,
			"text":         reply.Text,
			"message_type": reply.Type,
			"media_url":    reply.MediaURL,
			"cards":        reply.Cards,
			"is_bot":       true,
		},
	})
	if err != nil {
		slog.Warn("Web reply had no live transport",
			"channelID", channel.ChannelID,
			"visitorID", recipientID)
		return err
	}

	return nil
}
