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

// GetFlow retrieves a flow by id. Returns nil without error when it does not
// exist.
func GetFlow(ctx context.Context, id primitive.ObjectID) (*models.Flow, error) {
	collection := database.Collection("flows")

	var flow models.Flow
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&flow)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &flow, nil
}

// GetFlowByName retrieves a flow by name within a channel, for AI
// trigger_flow actions.
func GetFlowByName(ctx context.Context, channelID, name string) (*models.Flow, error) {
	collection := database.Collection("flows")

	var flow models.Flow
	err := collection.FindOne(ctx, bson.M{
		"channel_id": channelID,
		"name":       name,
		"is_active":  true,
	}).Decode(&flow)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &flow, nil
}

// ListFlowNames returns the names of all active flows on a channel, offered
// to the AI agent as candidate actions.
func ListFlowNames(ctx context.Context, channelID string) ([]string, error) {
	collection := database.Collection("flows")

	cursor, err := collection.Find(ctx, bson.M{
		"channel_id": channelID,
		"is_active":  true,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flows []models.Flow
	if err := cursor.All(ctx, &flows); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(flows))
	for _, flow := range flows {
		names = append(names, flow.Name)
	}

	return names, nil
}

// IncrementFlowUsage counts one completed execution of a flow.
func IncrementFlowUsage(ctx context.Context, id primitive.ObjectID) error {
	collection := database.Collection("flows")

	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"usage_count": 1},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		slog.Error("Failed to increment flow usage", "flowID", id.Hex(), "error", err)
	}
	return err
}

// ReplySender dispatches one reply over a channel. Implemented by
// AdapterRegistry.
type ReplySender interface {
	Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply Reply) error
}

// StepGenerator produces the text of an ai_response step. Implemented by
// AgentClient.
type StepGenerator interface {
	GenerateStepText(ctx context.Context, params GenerateParams) (string, int64, error)
}

// FlowStore is the persistence surface the executor needs.
type FlowStore interface {
	AppendLog(ctx context.Context, entry *models.MessageLog) error
	IncrementMessageUsage(ctx context.Context, tenantID string) error
	IncrementAITokenUsage(ctx context.Context, tenantID string, tokens int64) error
	IncrementFlowUsage(ctx context.Context, flowID primitive.ObjectID) error
}

// LiveBroadcaster publishes pipeline events to dashboard listeners.
// Implemented by WebSocketManager.
type LiveBroadcaster interface {
	BroadcastToChannel(channelID string, event LiveEvent)
}

// FlowExecutor steps through a scripted reply sequence in order, honoring
// the channel's response delay, AI-step budget gating and per-step pacing.
type FlowExecutor struct {
	Sender    ReplySender
	Agent     StepGenerator
	Store     FlowStore
	Publisher LiveBroadcaster // optional

	// StepPace separates consecutive sends to preserve channel ordering.
	// Zero means the default of one second.
	StepPace time.Duration
}

// ExecuteParams describes one flow run.
type ExecuteParams struct {
	Flow         *models.Flow
	Channel      *models.ChannelConnection
	Subscription *models.Subscription
	SenderID     string
	SenderName   string
	EventID      string
	Kind         string // dm|comment
	SourceText   string // the message that triggered the flow
	SystemPrompt string
}

// ExecResult summarizes a flow run.
type ExecResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// Execute runs all steps of a flow strictly in order. A failed send is
// logged and the loop continues with the next step; an AI step whose budget
// or feature check fails is skipped without aborting the flow.
func (e *FlowExecutor) Execute(ctx context.Context, params ExecuteParams) (ExecResult, error) {
	var result ExecResult

	pace := e.StepPace
	if pace == 0 {
		pace = time.Second
	}

	if delay := params.Channel.Bot.ResponseDelay; delay > 0 {
		if err := sleepCtx(ctx, time.Duration(delay)*time.Second); err != nil {
			return result, err
		}
	}

	for i, step := range params.Flow.Steps {
		reply, isAI, ok := e.buildStepReply(ctx, step, params)
		if !ok {
			result.Skipped++
			continue
		}

		var tokens int64
		if isAI {
			tokens = reply.tokens
		}

		if err := e.Sender.Send(ctx, params.Channel, params.SenderID, reply.Reply); err != nil {
			slog.Error("Flow step send failed",
				"flowID", params.Flow.ID.Hex(),
				"step", i,
				"channelID", params.Channel.ChannelID,
				"error", err)
			result.Failed++
			e.appendStepLog(ctx, params, reply.Reply, models.StatusFailed)
			continue
		}

		result.Sent++

		status := models.StatusReplied
		if isAI {
			status = models.StatusRepliedAI
		}
		e.appendStepLog(ctx, params, reply.Reply, status)

		// Billable action accounting: plain steps count a message, AI steps
		// count the generated tokens instead
		if isAI {
			if err := e.Store.IncrementAITokenUsage(ctx, params.Subscription.TenantID, tokens); err != nil {
				slog.Error("Failed to record AI token usage", "error", err)
			}
		} else {
			if err := e.Store.IncrementMessageUsage(ctx, params.Subscription.TenantID); err != nil {
				slog.Error("Failed to record message usage", "error", err)
			}
		}

		if i < len(params.Flow.Steps)-1 {
			if err := sleepCtx(ctx, pace); err != nil {
				return result, err
			}
		}
	}

	if result.Sent > 0 {
		if err := e.Store.IncrementFlowUsage(ctx, params.Flow.ID); err != nil {
			slog.Error("Failed to increment flow usage", "flowID", params.Flow.ID.Hex(), "error", err)
		}
	}

	return result, nil
}

type stepReply struct {
	Reply
	tokens int64
}

// buildStepReply converts one step into a sendable reply. Returns ok=false
// when the step should be skipped.
func (e *FlowExecutor) buildStepReply(ctx context.Context, step models.FlowStep, params ExecuteParams) (stepReply, bool, bool) {
	switch step.Type {
	case models.StepText:
		return stepReply{Reply: Reply{Type: models.ReplyText, Text: step.Text, Buttons: step.Buttons}}, false, true

	case models.StepImage:
		return stepReply{Reply: Reply{Type: models.ReplyImage, MediaURL: step.ImageURL, MediaType: "image"}}, false, true

	case models.StepCard:
		return stepReply{Reply: Reply{Type: models.ReplyCard, Cards: step.Cards}}, false, true

	case models.StepAIResponse:
		sub := params.Subscription
		if !sub.AIEnabled || sub.RemainingAITokens() <= 0 {
			slog.Info("AI step skipped, no feature access or budget",
				"flowID", params.Flow.ID.Hex(),
				"tenantID", sub.TenantID)
			return stepReply{}, true, false
		}

		text, tokens, err := e.Agent.GenerateStepText(ctx, GenerateParams{
			APIKey:       params.Channel.AI.APIKey,
			Model:        params.Channel.AI.Model,
			MaxTokens:    params.Channel.AI.MaxTokens,
			SystemPrompt: params.SystemPrompt,
			Task:         step.AITask,
			SourceText:   params.SourceText,
		})
		if err != nil {
			slog.Error("AI step generation failed, skipping step",
				"flowID", params.Flow.ID.Hex(),
				"error", err)
			return stepReply{}, true, false
		}

		return stepReply{Reply: Reply{Type: models.ReplyText, Text: text}, tokens: tokens}, true, true

	default:
		slog.Warn("Unknown flow step type skipped", "type", step.Type, "flowID", params.Flow.ID.Hex())
		return stepReply{}, false, false
	}
}

func (e *FlowExecutor) appendStepLog(ctx context.Context, params ExecuteParams, reply Reply, status string) {
	entry := &models.MessageLog{
		EventID:     params.EventID,
		ChannelID:   params.Channel.ChannelID,
		ChannelKind: params.Channel.Kind,
		SenderID:    params.SenderID,
		Direction:   models.DirectionOut,
		Kind:        params.Kind,
		Text:        reply.Text,
		MessageType: reply.Type,
		MediaURL:    reply.MediaURL,
		Cards:       reply.Cards,
		IsBot:       true,
		Status:      status,
		Timestamp:   time.Now(),
	}

	if err := e.Store.AppendLog(ctx, entry); err != nil {
		slog.Error("Failed to append flow step log", "error", err)
		return
	}

	if e.Publisher != nil && status != models.StatusFailed {
		e.Publisher.BroadcastToChannel(params.Channel.ChannelID, LiveEvent{
			Type: "new_message",
			Data: entry,
		})
	}
}

// sleepCtx is an explicit, cancellable sleep used for the response delay and
// inter-step pacing.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
