package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"instagram-bot/models"
)

// UpsertCustomerParams carries one inbound event's contribution to the CRM
// record.
type UpsertCustomerParams struct {
	ChannelID   string
	CustomerID  string
	TenantID    string
	Username    string
	DisplayName string
	AvatarURL   string
	LastMessage string
	Analysis    models.Analysis
}

// UpsertCustomer creates or updates the CRM record keyed by
// (channel id, sender id): profile fields, sentiment, interaction counter,
// lead score and tags. Runs once per inbound event regardless of which reply
// path is taken afterwards. Stage transitions append to history separately.
func UpsertCustomer(ctx context.Context, params UpsertCustomerParams) error {
	collection := database.Collection("customers")

	now := time.Now()
	filter := bson.M{
		"channel_id":  params.ChannelID,
		"customer_id": params.CustomerID,
	}

	update := buildCustomerUpdate(params, now)

	opts := options.Update().SetUpsert(true)
	result, err := collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		slog.Error("Failed to upsert customer",
			"customerID", params.CustomerID,
			"channelID", params.ChannelID,
			"error", err)
		return err
	}

	if result.UpsertedCount > 0 {
		slog.Info("New customer created",
			"customerID", params.CustomerID,
			"channelID", params.ChannelID)
	}

	if params.Analysis.NewStage != "" {
		if err := ApplyStageChange(ctx, params.ChannelID, params.CustomerID, params.Analysis.NewStage, "analysis"); err != nil {
			return err
		}
	}

	return nil
}

// buildCustomerUpdate constructs the atomic update document for one event:
// $set for profile and sentiment, $inc for interaction count and lead score,
// $addToSet for tags (set semantics), $setOnInsert for identity fields.
func buildCustomerUpdate(params UpsertCustomerParams, now time.Time) bson.M {
	set := bson.M{
		"tenant_id":  params.TenantID,
		"last_seen":  now,
		"updated_at": now,
	}
	if params.Username != "" {
		set["username"] = params.Username
	}
	if params.DisplayName != "" {
		set["display_name"] = params.DisplayName
	}
	if params.AvatarURL != "" {
		set["avatar_url"] = params.AvatarURL
	}
	if params.LastMessage != "" {
		set["last_message"] = params.LastMessage
	}
	if params.Analysis.Sentiment != "" {
		set["sentiment"] = params.Analysis.Sentiment
		set["sentiment_score"] = params.Analysis.Score
	}

	inc := bson.M{"interaction_count": 1}
	if delta := LeadScoreDelta(params.Analysis.Score); delta > 0 {
		inc["lead_score"] = delta
	}

	update := bson.M{
		"$set": set,
		"$inc": inc,
		"$setOnInsert": bson.M{
			"customer_id": params.CustomerID,
			"channel_id":  params.ChannelID,
			"stage":       models.StageLead,
			"is_lead":     true,
			"first_seen":  now,
			"created_at":  now,
		},
	}

	if len(params.Analysis.Tags) > 0 {
		update["$addToSet"] = bson.M{
			"tags": bson.M{"$each": params.Analysis.Tags},
		}
	}

	return update
}

// LeadScoreDelta converts a sentiment score into a lead-score increment:
// ceil(score/10) when the score is positive, zero otherwise.
func LeadScoreDelta(score int) int64 {
	if score <= 0 {
		return 0
	}
	return int64((score + 9) / 10)
}

// ApplyStageChange moves the customer to a new pipeline stage, appending a
// {from, to, timestamp, reason} entry to the stage history. History is
// append-only and never truncated; a no-op when the stage is unchanged.
func ApplyStageChange(ctx context.Context, channelID, customerID, newStage, reason string) error {
	collection := database.Collection("customers")

	customer, err := GetCustomer(ctx, channelID, customerID)
	if err != nil {
		return err
	}
	if customer == nil || customer.Stage == newStage {
		return nil
	}

	now := time.Now()
	change := models.StageChange{
		From:      customer.Stage,
		To:        newStage,
		Timestamp: now,
		Reason:    reason,
	}

	_, err = collection.UpdateOne(ctx,
		bson.M{"channel_id": channelID, "customer_id": customerID},
		bson.M{
			"$set":  bson.M{"stage": newStage, "updated_at": now},
			"$push": bson.M{"stage_history": change},
		},
	)
	if err != nil {
		slog.Error("Failed to apply stage change",
			"customerID", customerID,
			"channelID", channelID,
			"newStage", newStage,
			"error", err)
		return err
	}

	slog.Info("Customer stage changed",
		"customerID", customerID,
		"channelID", channelID,
		"from", change.From,
		"to", change.To)

	return nil
}

// GetCustomer retrieves the CRM record for one (channel, sender) pair.
// Returns nil without error when no record exists.
func GetCustomer(ctx context.Context, channelID, customerID string) (*models.Customer, error) {
	collection := database.Collection("customers")

	filter := bson.M{
		"channel_id":  channelID,
		"customer_id": customerID,
	}

	var customer models.Customer
	err := collection.FindOne(ctx, filter).Decode(&customer)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &customer, nil
}

// GetCustomersByChannel retrieves CRM records for a channel with pagination,
// most recently seen first.
func GetCustomersByChannel(ctx context.Context, channelID string, limit, skip int) ([]models.Customer, int64, error) {
	collection := database.Collection("customers")

	filter := bson.M{"channel_id": channelID}

	totalCount, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.M{"last_seen": -1}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var customers []models.Customer
	if err := cursor.All(ctx, &customers); err != nil {
		return nil, 0, err
	}

	return customers, totalCount, nil
}
