package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"instagram-bot/models"
)

func newTrigger(keywords []string, matchType, postID string) models.Trigger {
	return models.Trigger{
		ID:           primitive.NewObjectID(),
		Keywords:     keywords,
		MatchType:    matchType,
		TargetPostID: postID,
		IsActive:     true,
	}
}

func TestMatchTriggerModes(t *testing.T) {
	tests := []struct {
		name      string
		matchType string
		keyword   string
		text      string
		want      bool
	}{
		{"exact hit", models.MatchExact, "price", "price", true},
		{"exact miss on extra words", models.MatchExact, "price", "what is the price", false},
		{"exact case insensitive", models.MatchExact, "Price", "PRICE", true},
		{"contains hit", models.MatchContains, "price", "what is the price?", true},
		{"contains miss", models.MatchContains, "price", "how much", false},
		{"starts_with hit", models.MatchStartsWith, "hello", "hello there", true},
		{"starts_with miss", models.MatchStartsWith, "hello", "oh hello", false},
		{"ends_with hit", models.MatchEndsWith, "thanks", "ok thanks", true},
		{"ends_with miss", models.MatchEndsWith, "thanks", "thanks a lot", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := newTrigger([]string{tt.keyword}, tt.matchType, "")
			got := MatchTrigger([]models.Trigger{trigger}, tt.text, "")
			if tt.want {
				require.NotNil(t, got)
				assert.Equal(t, trigger.ID, got.ID)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestMatchTriggerPostScopedPrecedence(t *testing.T) {
	general := newTrigger([]string{"promo"}, models.MatchContains, "")
	scoped := newTrigger([]string{"promo"}, models.MatchContains, "post-1")

	// The general trigger comes first in creation order, but the post-scoped
	// one must win on its own post
	got := MatchTrigger([]models.Trigger{general, scoped}, "promo please", "post-1")
	require.NotNil(t, got)
	assert.Equal(t, scoped.ID, got.ID)

	// On another post the scoped trigger is skipped entirely
	got = MatchTrigger([]models.Trigger{general, scoped}, "promo please", "post-2")
	require.NotNil(t, got)
	assert.Equal(t, general.ID, got.ID)
}

func TestMatchTriggerFirstMatchWins(t *testing.T) {
	first := newTrigger([]string{"help"}, models.MatchContains, "")
	second := newTrigger([]string{"help", "support"}, models.MatchContains, "")

	got := MatchTrigger([]models.Trigger{first, second}, "i need help", "")
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestMatchTriggerEmptyInputs(t *testing.T) {
	trigger := newTrigger([]string{"hi"}, models.MatchExact, "")

	assert.Nil(t, MatchTrigger([]models.Trigger{trigger}, "", ""))
	assert.Nil(t, MatchTrigger([]models.Trigger{trigger}, "   ", ""))
	assert.Nil(t, MatchTrigger(nil, "hi", ""))

	// An empty keyword never matches
	empty := newTrigger([]string{""}, models.MatchContains, "")
	assert.Nil(t, MatchTrigger([]models.Trigger{empty}, "anything", ""))
}

func TestMatchTriggerUnknownModeNeverFires(t *testing.T) {
	trigger := newTrigger([]string{"hi"}, "regex", "")
	assert.Nil(t, MatchTrigger([]models.Trigger{trigger}, "hi", ""))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "hello world", NormalizeText("  Hello World  "))
	assert.Equal(t, "", NormalizeText("   "))
}
