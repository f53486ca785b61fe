package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"instagram-bot/config"
	"instagram-bot/models"
	"instagram-bot/services"
)

// RegisterRoutes mounts the Instagram webhook endpoints.
func RegisterRoutes(app *fiber.App, cfg *config.Config, queue *services.Queue) {
	webhook := app.Group("/webhook")

	webhook.Get("/", verifyWebhook(cfg))
	webhook.Post("/", handleWebhookEvent(queue))
}

// verifyWebhook handles the platform's subscription handshake
func verifyWebhook(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mode := c.Query("hub.mode")
		token := c.Query("hub.verify_token")
		challenge := c.Query("hub.challenge")

		if mode == "subscribe" && token == cfg.VerifyToken {
			slog.Info("Webhook verified successfully")
			return c.SendString(challenge)
		}

		slog.Warn("Webhook verification failed", "mode", mode)
		return c.SendStatus(fiber.StatusForbidden)
	}
}

// handleWebhookEvent normalizes incoming events onto the work queue and
// acknowledges immediately, so platform delivery timeouts never depend on
// pipeline latency.
func handleWebhookEvent(queue *services.Queue) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body WebhookEvent
		if err := c.BodyParser(&body); err != nil {
			slog.Error("Failed to parse webhook body", "error", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}

		if body.Object != "instagram" && body.Object != "page" {
			return c.SendStatus(fiber.StatusNotFound)
		}

		events := normalizeEntries(body.Entry)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, event := range events {
			if err := queue.Enqueue(ctx, event); err != nil {
				slog.Error("Failed to enqueue webhook event",
					"eventID", event.EventID,
					"channelID", event.ChannelID,
					"error", err)
			}
		}

		return c.SendString("EVENT_RECEIVED")
	}
}

// normalizeEntries flattens webhook entries into queue events. DMs and
// comments map onto the same normalized shape.
func normalizeEntries(entries []Entry) []models.InboundEvent {
	var events []models.InboundEvent

	for _, entry := range entries {
		channelID := entry.ID

		for _, messaging := range entry.Messaging {
			if messaging.Message == nil || messaging.Message.Text == "" {
				continue
			}

			events = append(events, models.InboundEvent{
				EventID:   uuid.NewString(),
				ChannelID: channelID,
				Platform:  models.ChannelInstagram,
				SenderID:  messaging.Sender.ID,
				Text:      messaging.Message.Text,
				Kind:      models.EventDM,
				IsEcho:    messaging.Message.IsEcho,
				Timestamp: messaging.Timestamp,
			})
		}

		for _, change := range entry.Changes {
			if change.Field != "comments" || change.Value.Text == "" {
				continue
			}

			event := models.InboundEvent{
				EventID:   uuid.NewString(),
				ChannelID: channelID,
				Platform:  models.ChannelInstagram,
				Text:      change.Value.Text,
				Kind:      models.EventComment,
				CommentID: change.Value.ID,
				Timestamp: entry.Time,
			}
			if change.Value.From != nil {
				event.SenderID = change.Value.From.ID
				event.SenderName = change.Value.From.Username
			}
			if change.Value.Media != nil {
				event.PostID = change.Value.Media.ID
			}

			// The account's own comments come back through the webhook too
			if event.SenderID == channelID {
				event.IsEcho = true
			}

			events = append(events, event)
		}
	}

	return events
}
