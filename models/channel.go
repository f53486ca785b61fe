package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel kinds supported by the reply dispatcher.
const (
	ChannelInstagram = "instagram"
	ChannelWeb       = "web"
)

// ChannelConnection represents a tenant-owned messaging surface: an Instagram
// business account or an embeddable web-chat channel.
type ChannelConnection struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID string             `bson:"channel_id" json:"channel_id"` // external id (IG account id or widget channel id)
	Kind      string             `bson:"kind" json:"kind"`             // "instagram" or "web"
	TenantID  string             `bson:"tenant_id" json:"tenant_id"`
	Name      string             `bson:"name" json:"name"`

	// AccessToken is empty for web channels
	AccessToken string `bson:"access_token,omitempty" json:"-"`

	Bot BotConfig `bson:"bot" json:"bot"`
	AI  AIConfig  `bson:"ai" json:"ai"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// BotConfig holds the per-channel automation settings. Unknown fields are
// rejected at the API boundary; defaults are IsActive=true, ResponseDelay=0.
type BotConfig struct {
	IsActive      bool `bson:"is_active" json:"is_active"`
	ResponseDelay int  `bson:"response_delay,omitempty" json:"response_delay,omitempty"` // in seconds, before the first flow step
}

// AIConfig holds the per-channel AI agent settings. Either PersonaID or an
// inline SystemPrompt may be set; PersonaID takes precedence.
type AIConfig struct {
	Enabled      bool   `bson:"enabled" json:"enabled"`
	PersonaID    string `bson:"persona_id,omitempty" json:"persona_id,omitempty"`
	SystemPrompt string `bson:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Model        string `bson:"model,omitempty" json:"model,omitempty"`
	MaxTokens    int    `bson:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	APIKey       string `bson:"api_key,omitempty" json:"-"`
}

// Persona is a reusable system prompt referenced by AIConfig.PersonaID.
type Persona struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PersonaID    string             `bson:"persona_id" json:"persona_id"`
	TenantID     string             `bson:"tenant_id" json:"tenant_id"`
	Name         string             `bson:"name" json:"name"`
	SystemPrompt string             `bson:"system_prompt" json:"system_prompt"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}
