package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trigger match modes.
const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
	MatchEndsWith   = "ends_with"
)

// Trigger event types.
const (
	EventDM      = "dm"
	EventComment = "comment"
	EventBoth    = "both"
)

// Trigger is a keyword rule scoped to a channel. When it matches an inbound
// event it selects a flow to execute. Triggers bound to a specific post are
// always evaluated before unrestricted triggers on the same channel.
type Trigger struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID    string             `bson:"channel_id" json:"channel_id"`
	Keywords     []string           `bson:"keywords" json:"keywords"`
	MatchType    string             `bson:"match_type" json:"match_type"` // exact|contains|starts_with|ends_with
	EventType    string             `bson:"event_type" json:"event_type"` // dm|comment|both
	TargetPostID string             `bson:"target_post_id,omitempty" json:"target_post_id,omitempty"`
	FlowID       primitive.ObjectID `bson:"flow_id" json:"flow_id"`
	CampaignID   primitive.ObjectID `bson:"campaign_id,omitempty" json:"campaign_id,omitempty"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// Flow step types.
const (
	StepText       = "text"
	StepImage      = "image"
	StepAIResponse = "ai_response"
	StepCard       = "card"
)

// Flow is an ordered script of reply steps for a channel. Step order is
// significant and replayed sequentially.
type Flow struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID  string             `bson:"channel_id" json:"channel_id"`
	Name       string             `bson:"name" json:"name"`
	Steps      []FlowStep         `bson:"steps" json:"steps"`
	UsageCount int64              `bson:"usage_count" json:"usage_count"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// FlowStep is a single reply step. Content fields are type-specific: Text for
// "text", ImageURL for "image", AITask for "ai_response", Cards for "card".
type FlowStep struct {
	Type     string   `bson:"type" json:"type"`
	Text     string   `bson:"text,omitempty" json:"text,omitempty"`
	ImageURL string   `bson:"image_url,omitempty" json:"image_url,omitempty"`
	AITask   string   `bson:"ai_task,omitempty" json:"ai_task,omitempty"`
	Cards    []Card   `bson:"cards,omitempty" json:"cards,omitempty"`
	Buttons  []Button `bson:"buttons,omitempty" json:"buttons,omitempty"`
}

// Button is a call-to-action link attached to a text reply or a card.
type Button struct {
	Title string `bson:"title" json:"title"`
	URL   string `bson:"url" json:"url"`
}

// Card is one item of a carousel reply.
type Card struct {
	Title    string   `bson:"title" json:"title"`
	Subtitle string   `bson:"subtitle,omitempty" json:"subtitle,omitempty"`
	ImageURL string   `bson:"image_url,omitempty" json:"image_url,omitempty"`
	LinkURL  string   `bson:"link_url,omitempty" json:"link_url,omitempty"`
	Buttons  []Button `bson:"buttons,omitempty" json:"buttons,omitempty"`
}

// Campaign statuses.
const (
	CampaignActive = "active"
	CampaignPaused = "paused"
	CampaignEnded  = "ended"
)

// Campaign wraps a trigger with scheduling and a reply-count ceiling.
// CurrentReplies is monotonically non-decreasing and never exceeds MaxReplies
// when the cap is nonzero (zero means unlimited).
type Campaign struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID string             `bson:"channel_id" json:"channel_id"`
	Name      string             `bson:"name" json:"name"`
	Status    string             `bson:"status" json:"status"` // active|paused|ended

	StartDate *time.Time `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   *time.Time `bson:"end_date,omitempty" json:"end_date,omitempty"`
	DailyFrom string     `bson:"daily_from,omitempty" json:"daily_from,omitempty"` // "HH:MM"
	DailyTo   string     `bson:"daily_to,omitempty" json:"daily_to,omitempty"`     // "HH:MM"
	Timezone  string     `bson:"timezone,omitempty" json:"timezone,omitempty"`

	MaxReplies     int64 `bson:"max_replies" json:"max_replies"` // 0 = unlimited
	CurrentReplies int64 `bson:"current_replies" json:"current_replies"`

	// A/B variant fields are declared but not yet routed on by the evaluator.
	VariantBFlowID primitive.ObjectID `bson:"variant_b_flow_id,omitempty" json:"variant_b_flow_id,omitempty"`
	SplitPercent   int                `bson:"split_percent,omitempty" json:"split_percent,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
