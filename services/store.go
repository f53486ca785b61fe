package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"instagram-bot/models"
)

// MongoStore adapts the package-level persistence functions to the narrow
// interfaces the pipeline and flow executor consume, so handlers can be
// tested against fakes.
type MongoStore struct{}

func (MongoStore) GetChannel(ctx context.Context, channelID string) (*models.ChannelConnection, error) {
	return GetChannelByExternalID(ctx, channelID)
}

func (MongoStore) CheckQuota(ctx context.Context, channel *models.ChannelConnection) GateResult {
	return CheckQuota(ctx, channel)
}

func (MongoStore) ResolveTrigger(ctx context.Context, channelID, text, eventType, postID string) (*models.Trigger, error) {
	return ResolveTrigger(ctx, channelID, text, eventType, postID)
}

func (MongoStore) GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	return GetCampaign(ctx, id)
}

func (MongoStore) IncrementCampaignReplies(ctx context.Context, id primitive.ObjectID) error {
	return IncrementCampaignReplies(ctx, id)
}

func (MongoStore) UpsertCustomer(ctx context.Context, params UpsertCustomerParams) error {
	return UpsertCustomer(ctx, params)
}

func (MongoStore) AppendLog(ctx context.Context, entry *models.MessageLog) error {
	return AppendMessageLog(ctx, entry)
}

func (MongoStore) UpdateLogStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return UpdateMessageStatus(ctx, id, status)
}

func (MongoStore) GetConversationHistory(ctx context.Context, channelID, senderID string, limit int) ([]ChatHistory, error) {
	return GetConversationHistory(ctx, channelID, senderID, limit)
}

func (MongoStore) ResolveSystemPrompt(ctx context.Context, channel *models.ChannelConnection) string {
	return ResolveSystemPrompt(ctx, channel)
}

func (MongoStore) GetFlow(ctx context.Context, id primitive.ObjectID) (*models.Flow, error) {
	return GetFlow(ctx, id)
}

func (MongoStore) GetFlowByName(ctx context.Context, channelID, name string) (*models.Flow, error) {
	return GetFlowByName(ctx, channelID, name)
}

func (MongoStore) ListFlowNames(ctx context.Context, channelID string) ([]string, error) {
	return ListFlowNames(ctx, channelID)
}

func (MongoStore) IncrementFlowUsage(ctx context.Context, id primitive.ObjectID) error {
	return IncrementFlowUsage(ctx, id)
}

func (MongoStore) IncrementMessageUsage(ctx context.Context, tenantID string) error {
	return IncrementMessageUsage(ctx, tenantID)
}

func (MongoStore) IncrementAITokenUsage(ctx context.Context, tenantID string, tokens int64) error {
	return IncrementAITokenUsage(ctx, tenantID, tokens)
}
