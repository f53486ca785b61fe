package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instagram-bot/models"
)

type recordingAdapter struct {
	kind string
	sent []Reply
	err  error
}

func (a *recordingAdapter) Kind() string { return a.kind }

func (a *recordingAdapter) Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply Reply) error {
	a.sent = append(a.sent, reply)
	return a.err
}

func TestAdapterRegistryRoutesByKind(t *testing.T) {
	instagram := &recordingAdapter{kind: models.ChannelInstagram}
	web := &recordingAdapter{kind: models.ChannelWeb}
	registry := NewAdapterRegistry(instagram, web)

	channel := &models.ChannelConnection{ChannelID: "ch-1", Kind: models.ChannelWeb}
	err := registry.Send(context.Background(), channel, "visitor-1", Reply{Type: models.ReplyText, Text: "hi"})
	require.NoError(t, err)

	assert.Len(t, web.sent, 1)
	assert.Empty(t, instagram.sent)
}

func TestAdapterRegistryUnknownKind(t *testing.T) {
	registry := NewAdapterRegistry(&recordingAdapter{kind: models.ChannelInstagram})

	channel := &models.ChannelConnection{ChannelID: "ch-1", Kind: "telegram"}
	err := registry.Send(context.Background(), channel, "u-1", Reply{Type: models.ReplyText})
	assert.ErrorIs(t, err, ErrUnknownChannelKind)
}

func TestWebAdapterNoLiveConnection(t *testing.T) {
	adapter := &WebAdapter{Manager: NewWebSocketManager()}
	channel := &models.ChannelConnection{ChannelID: "ch-1", Kind: models.ChannelWeb}

	err := adapter.Send(context.Background(), channel, "visitor-1", Reply{Type: models.ReplyText, Text: "hi"})
	assert.ErrorIs(t, err, ErrNoLiveConnection)
}

func TestWebAdapterRejectsUnknownReplyType(t *testing.T) {
	adapter := &WebAdapter{Manager: NewWebSocketManager()}
	channel := &models.ChannelConnection{ChannelID: "ch-1", Kind: models.ChannelWeb}

	err := adapter.Send(context.Background(), channel, "visitor-1", Reply{Type: "sticker"})
	assert.ErrorIs(t, err, ErrUnsupportedReplyType)
}

func TestBuildTextPayloadPlain(t *testing.T) {
	payload := buildTextPayload("user-1", "hello", nil)

	recipient := payload["recipient"].(map[string]string)
	assert.Equal(t, "user-1", recipient["id"])

	message := payload["message"].(map[string]string)
	assert.Equal(t, "hello", message["text"])
}

func TestBuildTextPayloadWithButtons(t *testing.T) {
	payload := buildTextPayload("user-1", "pick one", []models.Button{
		{Title: "Shop", URL: "https://example.com/shop"},
	})

	message := payload["message"].(map[string]interface{})
	attachment := message["attachment"].(map[string]interface{})
	assert.Equal(t, "template", attachment["type"])

	template := attachment["payload"].(map[string]interface{})
	assert.Equal(t, "button", template["template_type"])
	assert.Equal(t, "pick one", template["text"])

	buttons := template["buttons"].([]map[string]string)
	require.Len(t, buttons, 1)
	assert.Equal(t, "web_url", buttons[0]["type"])
	assert.Equal(t, "Shop", buttons[0]["title"])
}

func TestBuildMediaPayloadDefaultsToImage(t *testing.T) {
	payload := buildMediaPayload("user-1", "", "https://example.com/pic.jpg")

	message := payload["message"].(map[string]interface{})
	attachment := message["attachment"].(map[string]interface{})
	assert.Equal(t, "image", attachment["type"])

	inner := attachment["payload"].(map[string]interface{})
	assert.Equal(t, "https://example.com/pic.jpg", inner["url"])
}

func TestBuildCardsPayload(t *testing.T) {
	payload := buildCardsPayload("user-1", []models.Card{
		{
			Title:    "Summer promo",
			Subtitle: "20% off",
			ImageURL: "https://example.com/promo.jpg",
			LinkURL:  "https://example.com/promo",
			Buttons:  []models.Button{{Title: "Buy", URL: "https://example.com/buy"}},
		},
		{Title: "Second"},
	})

	message := payload["message"].(map[string]interface{})
	attachment := message["attachment"].(map[string]interface{})
	template := attachment["payload"].(map[string]interface{})
	assert.Equal(t, "generic", template["template_type"])

	elements := template["elements"].([]map[string]interface{})
	require.Len(t, elements, 2)

	first := elements[0]
	assert.Equal(t, "Summer promo", first["title"])
	assert.Equal(t, "20% off", first["subtitle"])

	defaultAction := first["default_action"].(map[string]string)
	assert.Equal(t, "https://example.com/promo", defaultAction["url"])

	second := elements[1]
	assert.Equal(t, "Second", second["title"])
	_, hasSubtitle := second["subtitle"]
	assert.False(t, hasSubtitle)
}
