package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"instagram-bot/models"
)

// Gate denial reason codes.
const (
	ReasonAccountNotFound     = "account_not_found"
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonMessageLimitReached = "message_limit_reached"
	ReasonServerError         = "server_error"
)

// GateResult is the outcome of the quota gate for one inbound event.
type GateResult struct {
	Allowed      bool
	Reason       string
	Subscription *models.Subscription
}

// FreeTier holds the limits applied when a tenant has no subscription yet.
// Overridden from config at startup.
type FreeTier struct {
	Messages int64
	AITokens int64
	Days     int
}

var freeTier = FreeTier{
	Messages: 500,
	AITokens: 20000,
	Days:     30,
}

// SetFreeTier configures the lazily provisioned free-tier limits.
func SetFreeTier(tier FreeTier) {
	freeTier = tier
}

// GetOrCreateSubscription returns the tenant's subscription, lazily creating
// a free-tier one when none exists. The upsert guarantees the pipeline never
// blocks on missing billing state.
func GetOrCreateSubscription(ctx context.Context, tenantID string) (*models.Subscription, error) {
	collection := database.Collection("subscriptions")

	now := time.Now()
	filter := bson.M{"tenant_id": tenantID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"tenant_id": tenantID,
			"plan":      models.PlanFree,
			"status":    models.SubscriptionActive,
			"limits": bson.M{
				"message_count": freeTier.Messages,
				"ai_tokens":     freeTier.AITokens,
			},
			"usage": bson.M{
				"messages_used":  int64(0),
				"ai_tokens_used": int64(0),
			},
			"ai_enabled": true,
			"starts_at":  now,
			"expires_at": now.AddDate(0, 0, freeTier.Days),
			"created_at": now,
			"updated_at": now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var subscription models.Subscription
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&subscription)
	if err != nil {
		return nil, err
	}

	return &subscription, nil
}

// CheckQuota gates one inbound event: resolves the tenant's subscription
// (provisioning a free tier when absent) and checks expiry and message usage.
// Transient lookup failures surface as a server_error denial.
func CheckQuota(ctx context.Context, channel *models.ChannelConnection) GateResult {
	if channel == nil {
		return GateResult{Allowed: false, Reason: ReasonAccountNotFound}
	}

	subscription, err := GetOrCreateSubscription(ctx, channel.TenantID)
	if err != nil {
		slog.Error("Failed to resolve subscription",
			"tenantID", channel.TenantID,
			"channelID", channel.ChannelID,
			"error", err)
		return GateResult{Allowed: false, Reason: ReasonServerError}
	}

	return evaluateQuota(subscription, time.Now())
}

// evaluateQuota is the pure gate decision over a subscription snapshot.
func evaluateQuota(sub *models.Subscription, now time.Time) GateResult {
	if sub.Status != models.SubscriptionActive {
		return GateResult{Allowed: false, Reason: ReasonSubscriptionExpired, Subscription: sub}
	}

	if !sub.ExpiresAt.IsZero() && now.After(sub.ExpiresAt) {
		return GateResult{Allowed: false, Reason: ReasonSubscriptionExpired, Subscription: sub}
	}

	if sub.Limits.MessageCount > 0 && sub.Usage.MessagesUsed >= sub.Limits.MessageCount {
		return GateResult{Allowed: false, Reason: ReasonMessageLimitReached, Subscription: sub}
	}

	return GateResult{Allowed: true, Subscription: sub}
}

// IncrementMessageUsage counts one billable outbound message against the
// tenant's quota.
func IncrementMessageUsage(ctx context.Context, tenantID string) error {
	collection := database.Collection("subscriptions")

	_, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID},
		bson.M{
			"$inc": bson.M{"usage.messages_used": 1},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		slog.Error("Failed to increment message usage", "tenantID", tenantID, "error", err)
	}
	return err
}

// IncrementAITokenUsage applies the agent's reported token usage to the
// tenant's AI budget.
func IncrementAITokenUsage(ctx context.Context, tenantID string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}

	collection := database.Collection("subscriptions")

	_, err := collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID},
		bson.M{
			"$inc": bson.M{"usage.ai_tokens_used": tokens},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		slog.Error("Failed to increment AI token usage", "tenantID", tenantID, "error", err)
	}
	return err
}
