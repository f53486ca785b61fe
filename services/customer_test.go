package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"instagram-bot/models"
)

func TestLeadScoreDelta(t *testing.T) {
	assert.Equal(t, int64(0), LeadScoreDelta(0))
	assert.Equal(t, int64(0), LeadScoreDelta(-20))
	assert.Equal(t, int64(1), LeadScoreDelta(1))
	assert.Equal(t, int64(1), LeadScoreDelta(10))
	assert.Equal(t, int64(2), LeadScoreDelta(11))
	assert.Equal(t, int64(10), LeadScoreDelta(100))
}

func TestBuildCustomerUpdateNewRecordDefaults(t *testing.T) {
	now := time.Now()
	update := buildCustomerUpdate(UpsertCustomerParams{
		ChannelID:  "ch-1",
		CustomerID: "cust-1",
		TenantID:   "tenant-1",
	}, now)

	onInsert, ok := update["$setOnInsert"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "cust-1", onInsert["customer_id"])
	assert.Equal(t, "ch-1", onInsert["channel_id"])
	assert.Equal(t, models.StageLead, onInsert["stage"])
	assert.Equal(t, true, onInsert["is_lead"])
	assert.Equal(t, now, onInsert["first_seen"])
}

func TestBuildCustomerUpdateInteractionIncrement(t *testing.T) {
	update := buildCustomerUpdate(UpsertCustomerParams{
		ChannelID:  "ch-1",
		CustomerID: "cust-1",
	}, time.Now())

	inc, ok := update["$inc"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, 1, inc["interaction_count"])

	// No lead score movement without a positive sentiment score
	_, hasLeadScore := inc["lead_score"]
	assert.False(t, hasLeadScore)
}

func TestBuildCustomerUpdateLeadScoreFromSentiment(t *testing.T) {
	update := buildCustomerUpdate(UpsertCustomerParams{
		ChannelID:  "ch-1",
		CustomerID: "cust-1",
		Analysis: models.Analysis{
			Sentiment: models.SentimentPositive,
			Score:     35,
		},
	}, time.Now())

	inc := update["$inc"].(bson.M)
	assert.Equal(t, int64(4), inc["lead_score"])

	set := update["$set"].(bson.M)
	assert.Equal(t, models.SentimentPositive, set["sentiment"])
	assert.Equal(t, 35, set["sentiment_score"])
}

func TestBuildCustomerUpdateTagsUseSetSemantics(t *testing.T) {
	update := buildCustomerUpdate(UpsertCustomerParams{
		ChannelID:  "ch-1",
		CustomerID: "cust-1",
		Analysis: models.Analysis{
			Tags: []string{"vip", "pricing"},
		},
	}, time.Now())

	addToSet, ok := update["$addToSet"].(bson.M)
	require.True(t, ok)
	each := addToSet["tags"].(bson.M)
	assert.ElementsMatch(t, []string{"vip", "pricing"}, each["$each"])
}

func TestBuildCustomerUpdateSkipsEmptyProfileFields(t *testing.T) {
	update := buildCustomerUpdate(UpsertCustomerParams{
		ChannelID:  "ch-1",
		CustomerID: "cust-1",
		Username:   "sofia",
	}, time.Now())

	set := update["$set"].(bson.M)
	assert.Equal(t, "sofia", set["username"])
	_, hasDisplay := set["display_name"]
	assert.False(t, hasDisplay)
	_, hasAvatar := set["avatar_url"]
	assert.False(t, hasAvatar)
	_, hasSentiment := set["sentiment"]
	assert.False(t, hasSentiment)
}
