package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription statuses.
const (
	SubscriptionActive   = "active"
	SubscriptionExpired  = "expired"
	SubscriptionCanceled = "canceled"
)

// Plan names.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Subscription is the per-tenant snapshot of plan limits and live usage
// counters. If a tenant has no subscription a free-tier one is lazily created
// so the pipeline never blocks on missing billing state.
type Subscription struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID string             `bson:"tenant_id" json:"tenant_id"`
	Plan     string             `bson:"plan" json:"plan"`
	Status   string             `bson:"status" json:"status"` // active|expired|canceled

	Limits PlanLimits    `bson:"limits" json:"limits"`
	Usage  UsageCounters `bson:"usage" json:"usage"`

	AIEnabled bool `bson:"ai_enabled" json:"ai_enabled"`

	StartsAt  time.Time `bson:"starts_at" json:"starts_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PlanLimits are the ceilings for one billing period.
type PlanLimits struct {
	MessageCount int64 `bson:"message_count" json:"message_count"`
	AITokens     int64 `bson:"ai_tokens" json:"ai_tokens"`
}

// UsageCounters track consumption inside the current period. Incremented
// exactly once per billable action, via atomic $inc.
type UsageCounters struct {
	MessagesUsed int64 `bson:"messages_used" json:"messages_used"`
	AITokensUsed int64 `bson:"ai_tokens_used" json:"ai_tokens_used"`
}

// RemainingAITokens returns the unspent AI-token budget, never negative.
func (s *Subscription) RemainingAITokens() int64 {
	remaining := s.Limits.AITokens - s.Usage.AITokensUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
