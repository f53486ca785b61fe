package services

import (
	"context"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"instagram-bot/models"
)

// GetActiveTriggers loads all active triggers for a channel that apply to the
// given event type ("dm" or "comment").
func GetActiveTriggers(ctx context.Context, channelID, eventType string) ([]models.Trigger, error) {
	collection := database.Collection("triggers")

	filter := bson.M{
		"channel_id": channelID,
		"is_active":  true,
		"event_type": bson.M{"$in": []string{eventType, models.EventBoth}},
	}

	findOptions := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var triggers []models.Trigger
	if err := cursor.All(ctx, &triggers); err != nil {
		return nil, err
	}

	return triggers, nil
}

// ResolveTrigger finds the trigger that fires for an inbound event, or nil.
func ResolveTrigger(ctx context.Context, channelID, text, eventType, postID string) (*models.Trigger, error) {
	triggers, err := GetActiveTriggers(ctx, channelID, eventType)
	if err != nil {
		return nil, err
	}

	return MatchTrigger(triggers, text, postID), nil
}

// MatchTrigger applies the disambiguation policy over a trigger set:
// triggers bound to a specific post are evaluated before unrestricted ones
// (stable otherwise), and the first trigger with a satisfying keyword wins.
// Resolution halts at the first match; no multi-trigger firing.
func MatchTrigger(triggers []models.Trigger, text, postID string) *models.Trigger {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	ordered := make([]models.Trigger, len(triggers))
	copy(ordered, triggers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TargetPostID != "" && ordered[j].TargetPostID == ""
	})

	for i := range ordered {
		trigger := &ordered[i]

		// A post-scoped trigger only fires on its own post
		if trigger.TargetPostID != "" && trigger.TargetPostID != postID {
			continue
		}

		for _, keyword := range trigger.Keywords {
			if matchKeyword(trigger.MatchType, normalized, NormalizeText(keyword)) {
				return trigger
			}
		}
	}

	return nil
}

// NormalizeText lowercases and trims message text before matching.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matchKeyword(matchType, text, keyword string) bool {
	if keyword == "" {
		return false
	}

	switch matchType {
	case models.MatchExact:
		return text == keyword
	case models.MatchContains:
		return strings.Contains(text, keyword)
	case models.MatchStartsWith:
		return strings.HasPrefix(text, keyword)
	case models.MatchEndsWith:
		return strings.HasSuffix(text, keyword)
	default:
		return false
	}
}
