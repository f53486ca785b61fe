package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"instagram-bot/models"
)

// GetChannelByExternalID retrieves the channel connection for an external
// channel id. Returns nil without error when no connection exists.
func GetChannelByExternalID(ctx context.Context, channelID string) (*models.ChannelConnection, error) {
	collection := database.Collection("channels")

	var channel models.ChannelConnection
	err := collection.FindOne(ctx, bson.M{"channel_id": channelID}).Decode(&channel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &channel, nil
}

// GetChannelsByTenant lists all channel connections owned by a tenant.
func GetChannelsByTenant(ctx context.Context, tenantID string) ([]models.ChannelConnection, error) {
	collection := database.Collection("channels")

	cursor, err := collection.Find(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var channels []models.ChannelConnection
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, err
	}

	return channels, nil
}

// GetPersona retrieves a persona by its id. Returns nil without error when
// the persona does not exist.
func GetPersona(ctx context.Context, personaID string) (*models.Persona, error) {
	collection := database.Collection("personas")

	var persona models.Persona
	err := collection.FindOne(ctx, bson.M{"persona_id": personaID}).Decode(&persona)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &persona, nil
}

// ResolveSystemPrompt resolves the active system prompt for a channel:
// persona id -> persona record -> prompt, falling back to the channel's
// inline prompt, then to a typed default.
func ResolveSystemPrompt(ctx context.Context, channel *models.ChannelConnection) string {
	if channel.AI.PersonaID != "" {
		persona, err := GetPersona(ctx, channel.AI.PersonaID)
		if err != nil {
			slog.Warn("Failed to load persona, falling back",
				"personaID", channel.AI.PersonaID,
				"channelID", channel.ChannelID,
				"error", err)
		} else if persona != nil && persona.SystemPrompt != "" {
			return persona.SystemPrompt
		}
	}

	if channel.AI.SystemPrompt != "" {
		return channel.AI.SystemPrompt
	}

	return DefaultSystemPrompt(channel.Name)
}

// DefaultSystemPrompt is the fallback persona used when a channel has no AI
// configuration beyond the enabled flag.
func DefaultSystemPrompt(channelName string) string {
	if channelName == "" {
		channelName = "this business"
	}
	return fmt.Sprintf("You are a helpful customer service assistant for %s. "+
		"Answer briefly and politely. If you cannot help, say so honestly.", channelName)
}
