package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pipeline stages a customer moves through.
const (
	StageLead      = "lead"
	StageContacted = "contacted"
	StageQualified = "qualified"
	StagePurchased = "purchased"
)

// Sentiment labels.
const (
	SentimentNeutral  = "neutral"
	SentimentPositive = "positive"
	SentimentNegative = "negative"
)

// Customer is the CRM record for one sender on one channel. Unique per
// (channel_id, customer_id); stage transitions are appended to StageHistory,
// never overwritten.
type Customer struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CustomerID string             `bson:"customer_id" json:"customer_id"` // sender id on the channel
	ChannelID  string             `bson:"channel_id" json:"channel_id"`
	TenantID   string             `bson:"tenant_id" json:"tenant_id"`

	Username    string `bson:"username,omitempty" json:"username,omitempty"`
	DisplayName string `bson:"display_name,omitempty" json:"display_name,omitempty"`
	AvatarURL   string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`

	Sentiment      string   `bson:"sentiment" json:"sentiment"`
	SentimentScore int      `bson:"sentiment_score" json:"sentiment_score"`
	Tags           []string `bson:"tags,omitempty" json:"tags,omitempty"`

	Stage        string        `bson:"stage" json:"stage"`
	StageHistory []StageChange `bson:"stage_history,omitempty" json:"stage_history,omitempty"`

	InteractionCount int64 `bson:"interaction_count" json:"interaction_count"`
	LeadScore        int64 `bson:"lead_score" json:"lead_score"`
	IsLead           bool  `bson:"is_lead" json:"is_lead"`

	FirstSeen time.Time `bson:"first_seen" json:"first_seen"`
	LastSeen  time.Time `bson:"last_seen" json:"last_seen"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// StageChange is one entry of the append-only stage history.
type StageChange struct {
	From      string    `bson:"from" json:"from"`
	To        string    `bson:"to" json:"to"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Reason    string    `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Analysis is a sentiment/stage assessment of one inbound message, produced
// by the AI agent or defaulted by the pipeline.
type Analysis struct {
	Sentiment string   `json:"sentiment"`
	Tags      []string `json:"tags,omitempty"`
	Score     int      `json:"score"`
	NewStage  string   `json:"new_stage,omitempty"`
}

// DefaultAnalysis is the neutral assessment applied when no AI analysis is
// available for an event.
func DefaultAnalysis() Analysis {
	return Analysis{Sentiment: SentimentNeutral}
}
