package handlers

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"instagram-bot/models"
	"instagram-bot/services"
)

// PipelineStore is the persistence surface the event pipeline needs.
// services.MongoStore implements it; tests substitute fakes.
type PipelineStore interface {
	GetChannel(ctx context.Context, channelID string) (*models.ChannelConnection, error)
	CheckQuota(ctx context.Context, channel *models.ChannelConnection) services.GateResult
	ResolveTrigger(ctx context.Context, channelID, text, eventType, postID string) (*models.Trigger, error)
	GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error)
	IncrementCampaignReplies(ctx context.Context, id primitive.ObjectID) error
	UpsertCustomer(ctx context.Context, params services.UpsertCustomerParams) error
	AppendLog(ctx context.Context, entry *models.MessageLog) error
	UpdateLogStatus(ctx context.Context, id primitive.ObjectID, status string) error
	GetConversationHistory(ctx context.Context, channelID, senderID string, limit int) ([]services.ChatHistory, error)
	ResolveSystemPrompt(ctx context.Context, channel *models.ChannelConnection) string
	GetFlow(ctx context.Context, id primitive.ObjectID) (*models.Flow, error)
	GetFlowByName(ctx context.Context, channelID, name string) (*models.Flow, error)
	ListFlowNames(ctx context.Context, channelID string) ([]string, error)
	IncrementAITokenUsage(ctx context.Context, tenantID string, tokens int64) error
}

// Agent is the AI fallback client.
type Agent interface {
	Call(ctx context.Context, params services.AgentParams) (*services.AgentResult, error)
}

// FlowRunner executes a reply flow end to end.
type FlowRunner interface {
	Execute(ctx context.Context, params services.ExecuteParams) (services.ExecResult, error)
}

// ReplySender dispatches a single reply over the channel's transport.
type ReplySender interface {
	Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply services.Reply) error
}

// Publisher pushes live updates to dashboard listeners.
type Publisher interface {
	BroadcastToChannel(channelID string, event services.LiveEvent)
}
