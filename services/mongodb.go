package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"instagram-bot/models"
)

var (
	mongoClient *mongo.Client
	database    *mongo.Database
)

// GetDatabase returns the MongoDB database instance
func GetDatabase() *mongo.Database {
	return database
}

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	slog.Info("Connected to MongoDB")
	mongoClient = client

	return client, nil
}

// InitServices initializes all services
func InitServices(client *mongo.Client, databaseName string) {
	database = client.Database(databaseName)

	// Create indexes
	createIndexes()
}

// createIndexes creates necessary database indexes
func createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Message log indexes
	logsCollection := database.Collection("message_logs")
	logsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "sender_id", Value: 1}}},
		{Keys: bson.M{"event_id": 1}},
		{Keys: bson.M{"timestamp": -1}},
	})

	// Customers: one CRM record per (channel, sender)
	customersCollection := database.Collection("customers")
	customersCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.M{"tenant_id": 1}},
		{Keys: bson.M{"last_seen": -1}},
	})

	// Subscriptions: one per tenant
	subscriptionsCollection := database.Collection("subscriptions")
	subscriptionsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"tenant_id": 1},
		Options: options.Index().SetUnique(true),
	})

	// Channel connections
	channelsCollection := database.Collection("channels")
	channelsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"channel_id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"tenant_id": 1}},
	})

	// Triggers and flows
	triggersCollection := database.Collection("triggers")
	triggersCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "is_active", Value: 1}},
	})

	flowsCollection := database.Collection("flows")
	flowsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "name", Value: 1}},
	})

	// Sessions expire via TTL on expires_at
	sessionsCollection := database.Collection("sessions")
	sessionsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"session_id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"expires_at": 1}, Options: options.Index().SetExpireAfterSeconds(0)},
	})

	usersCollection := database.Collection("users")
	usersCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"email": 1},
		Options: options.Index().SetUnique(true),
	})
}

// AppendMessageLog appends one entry to the message log and fills in its ID.
func AppendMessageLog(ctx context.Context, entry *models.MessageLog) error {
	collection := database.Collection("message_logs")

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	result, err := collection.InsertOne(ctx, entry)
	if err != nil {
		return err
	}

	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		entry.ID = id
	}

	return nil
}

// UpdateMessageStatus transitions the status field of one log entry. The rest
// of the record is immutable.
func UpdateMessageStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	collection := database.Collection("message_logs")

	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		slog.Error("Failed to update message status",
			"logID", id.Hex(),
			"status", status,
			"error", err)
	}
	return err
}

// ChatHistory represents a conversation history entry for the AI agent
type ChatHistory struct {
	Role      string    `bson:"role" json:"role"` // "user" or "assistant"
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// GetConversationHistory fetches the most recent log entries for a
// (channel, sender) pair, oldest first, for use as agent context.
func GetConversationHistory(ctx context.Context, channelID, senderID string, limit int) ([]ChatHistory, error) {
	collection := database.Collection("message_logs")

	if limit <= 0 {
		limit = 6
	}

	filter := bson.M{
		"channel_id": channelID,
		"sender_id":  senderID,
	}

	findOptions := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.MessageLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	// Cursor returns newest first; reverse so the agent reads oldest first
	history := make([]ChatHistory, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		role := "user"
		if entry.IsBot {
			role = "assistant"
		}
		history = append(history, ChatHistory{
			Role:      role,
			Content:   entry.Text,
			Timestamp: entry.Timestamp,
		})
	}

	return history, nil
}

// GetMessageLogs retrieves log entries for a channel with pagination, newest
// first. When senderID is non-empty, only that conversation is returned.
func GetMessageLogs(ctx context.Context, channelID, senderID string, limit, skip int) ([]models.MessageLog, int64, error) {
	collection := database.Collection("message_logs")

	filter := bson.M{"channel_id": channelID}
	if senderID != "" {
		filter["sender_id"] = senderID
	}

	totalCount, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var entries []models.MessageLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}

	return entries, totalCount, nil
}
