package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"instagram-bot/models"
)

// Campaign denial reason codes.
const (
	CampaignReasonInactive      = "campaign_inactive"
	CampaignReasonNotStarted    = "campaign_not_started"
	CampaignReasonEnded         = "campaign_ended"
	CampaignReasonOutsideWindow = "outside_daily_window"
	CampaignReasonCapReached    = "reply_cap_reached"
)

// GetCampaign retrieves a campaign by id. Returns nil without error when the
// campaign does not exist.
func GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	collection := database.Collection("campaigns")

	var campaign models.Campaign
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&campaign)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// EvaluateCampaign decides whether a campaign-bound trigger may fire at the
// given instant. Checks run in order: status, start/end dates, daily window,
// reply cap. Any failed check suppresses flow execution entirely.
func EvaluateCampaign(campaign *models.Campaign, now time.Time) (bool, string) {
	if campaign.Status != models.CampaignActive {
		return false, CampaignReasonInactive
	}

	if campaign.StartDate != nil && now.Before(*campaign.StartDate) {
		return false, CampaignReasonNotStarted
	}

	if campaign.EndDate != nil && now.After(*campaign.EndDate) {
		return false, CampaignReasonEnded
	}

	if campaign.DailyFrom != "" && campaign.DailyTo != "" {
		if !withinDailyWindow(now, campaign.DailyFrom, campaign.DailyTo, campaign.Timezone) {
			return false, CampaignReasonOutsideWindow
		}
	}

	if campaign.MaxReplies > 0 && campaign.CurrentReplies >= campaign.MaxReplies {
		return false, CampaignReasonCapReached
	}

	return true, ""
}

// withinDailyWindow reports whether the local time-of-day falls inside the
// [from, to] window. A window with to < from spans midnight.
func withinDailyWindow(now time.Time, from, to, timezone string) bool {
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		} else {
			slog.Warn("Unknown campaign timezone, using UTC", "timezone", timezone)
		}
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	fromMin, okFrom := parseClock(from)
	toMin, okTo := parseClock(to)
	if !okFrom || !okTo {
		// Malformed window never blocks
		return true
	}

	if fromMin <= toMin {
		return minute >= fromMin && minute <= toMin
	}
	return minute >= fromMin || minute <= toMin
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// IncrementCampaignReplies counts one sent reply against the campaign cap.
// Called only after a reply was actually sent, so suppressed or failed sends
// are never counted. The filter embeds the cap check so concurrent workers
// cannot push the counter past MaxReplies.
func IncrementCampaignReplies(ctx context.Context, id primitive.ObjectID) error {
	collection := database.Collection("campaigns")

	filter := bson.M{
		"_id": id,
		"$or": []bson.M{
			{"max_replies": 0},
			{"$expr": bson.M{"$lt": bson.A{"$current_replies", "$max_replies"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"current_replies": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		slog.Error("Failed to increment campaign replies", "campaignID", id.Hex(), "error", err)
		return err
	}

	if result.ModifiedCount == 0 {
		slog.Warn("Campaign reply counter already at cap", "campaignID", id.Hex())
	}

	return nil
}
