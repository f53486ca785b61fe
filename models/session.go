package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is a dashboard login session stored in Mongo. Expired sessions are
// reaped by a TTL index on expires_at.
type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Email     string             `bson:"email" json:"email"`
	TenantID  string             `bson:"tenant_id" json:"tenant_id"`

	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	LastAccessed time.Time `bson:"last_accessed" json:"last_accessed"`
	ExpiresAt    time.Time `bson:"expires_at" json:"expires_at"`
	IsActive     bool      `bson:"is_active" json:"is_active"`
}
