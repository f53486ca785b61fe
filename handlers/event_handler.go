package handlers

import (
	"context"
	"log/slog"
	"time"

	"instagram-bot/models"
	"instagram-bot/services"
)

// Pipeline coordinates the processing of one inbound event: quota gate, CRM
// upsert, trigger resolution, flow execution or AI fallback, reply dispatch
// and message logging. Invoked by queue workers.
type Pipeline struct {
	Store     PipelineStore
	Agent     Agent
	Flows     FlowRunner
	Sender    ReplySender
	Publisher Publisher
}

// HandleEvent processes one normalized inbound event end to end. Panics are
// caught by the queue's retry wrapper; errors here terminate processing of
// this event only.
func (p *Pipeline) HandleEvent(ctx context.Context, event models.InboundEvent) {
	// The channel's own outbound messages echo back through the webhook.
	// Dropping them here is what prevents reply loops.
	if event.IsEcho {
		slog.Debug("Echo event discarded", "eventID", event.EventID, "channelID", event.ChannelID)
		return
	}

	if event.Text == "" || event.SenderID == "" {
		slog.Debug("Incomplete event discarded", "eventID", event.EventID)
		return
	}

	channel, err := p.Store.GetChannel(ctx, event.ChannelID)
	if err != nil {
		slog.Error("Channel lookup failed", "channelID", event.ChannelID, "error", err)
		return
	}
	if channel == nil {
		slog.Warn("Event for unknown channel discarded",
			"eventID", event.EventID,
			"channelID", event.ChannelID)
		return
	}

	inbound := &models.MessageLog{
		EventID:     event.EventID,
		ChannelID:   channel.ChannelID,
		ChannelKind: channel.Kind,
		SenderID:    event.SenderID,
		SenderName:  event.SenderName,
		Direction:   models.DirectionIn,
		Kind:        event.Kind,
		PostID:      event.PostID,
		CommentID:   event.CommentID,
		Text:        event.Text,
		MessageType: models.ReplyText,
		Status:      models.StatusReceived,
		Timestamp:   time.Now(),
	}
	if err := p.Store.AppendLog(ctx, inbound); err != nil {
		slog.Error("Failed to log inbound event", "eventID", event.EventID, "error", err)
		return
	}

	if p.Publisher != nil {
		p.Publisher.BroadcastToChannel(channel.ChannelID, services.LiveEvent{
			Type:     "new_message",
			SenderID: event.SenderID,
			Data:     inbound,
		})
	}

	gate := p.Store.CheckQuota(ctx, channel)
	if !gate.Allowed {
		slog.Warn("Event blocked by quota gate",
			"eventID", event.EventID,
			"channelID", channel.ChannelID,
			"reason", gate.Reason)
		return
	}

	// CRM runs once per gated event, whatever reply path follows
	if err := p.Store.UpsertCustomer(ctx, services.UpsertCustomerParams{
		ChannelID:   channel.ChannelID,
		CustomerID:  event.SenderID,
		TenantID:    channel.TenantID,
		Username:    event.SenderName,
		DisplayName: event.SenderName,
		AvatarURL:   event.AvatarURL,
		LastMessage: event.Text,
		Analysis:    models.DefaultAnalysis(),
	}); err != nil {
		slog.Error("CRM upsert failed", "eventID", event.EventID, "error", err)
	}

	if !channel.Bot.IsActive {
		p.setStatus(ctx, inbound, models.StatusIgnored)
		return
	}

	trigger, err := p.Store.ResolveTrigger(ctx, channel.ChannelID, event.Text, event.Kind, event.PostID)
	if err != nil {
		slog.Error("Trigger resolution failed", "eventID", event.EventID, "error", err)
		return
	}

	if trigger != nil {
		if p.runTriggeredFlow(ctx, channel, gate.Subscription, trigger, event, inbound) {
			return
		}
		// Missing or inactive flow falls through to the AI fallback
	}

	p.runAIFallback(ctx, channel, gate.Subscription, event, inbound)
}

// runTriggeredFlow executes the flow a trigger selected, honoring any
// campaign schedule and cap bound to the trigger. Returns false when the
// trigger's flow no longer exists, so the caller can fall back.
func (p *Pipeline) runTriggeredFlow(ctx context.Context, channel *models.ChannelConnection, sub *models.Subscription, trigger *models.Trigger, event models.InboundEvent, inbound *models.MessageLog) bool {
	hasCampaign := !trigger.CampaignID.IsZero()
	if hasCampaign {
		campaign, err := p.Store.GetCampaign(ctx, trigger.CampaignID)
		if err != nil {
			slog.Error("Campaign lookup failed",
				"campaignID", trigger.CampaignID.Hex(),
				"error", err)
			return true
		}
		if campaign != nil {
			allowed, reason := services.EvaluateCampaign(campaign, time.Now())
			if !allowed {
				slog.Info("Flow suppressed by campaign",
					"eventID", event.EventID,
					"campaignID", trigger.CampaignID.Hex(),
					"reason", reason)
				return true
			}
		}
	}

	flow, err := p.Store.GetFlow(ctx, trigger.FlowID)
	if err != nil {
		slog.Error("Flow lookup failed", "flowID", trigger.FlowID.Hex(), "error", err)
		return true
	}
	if flow == nil || !flow.IsActive {
		slog.Warn("Trigger points at missing or inactive flow",
			"triggerID", trigger.ID.Hex(),
			"flowID", trigger.FlowID.Hex())
		return false
	}

	result, err := p.Flows.Execute(ctx, services.ExecuteParams{
		Flow:         flow,
		Channel:      channel,
		Subscription: sub,
		SenderID:     event.SenderID,
		SenderName:   event.SenderName,
		EventID:      event.EventID,
		Kind:         event.Kind,
		SourceText:   event.Text,
		SystemPrompt: p.Store.ResolveSystemPrompt(ctx, channel),
	})
	if err != nil {
		slog.Error("Flow execution aborted", "flowID", flow.ID.Hex(), "error", err)
	}

	switch {
	case result.Sent > 0:
		p.setStatus(ctx, inbound, models.StatusReplied)
		if hasCampaign {
			// Counted only after at least one reply actually went out
			if err := p.Store.IncrementCampaignReplies(ctx, trigger.CampaignID); err != nil {
				slog.Error("Failed to count campaign reply",
					"campaignID", trigger.CampaignID.Hex(),
					"error", err)
			}
		}
	case result.Failed > 0:
		p.setStatus(ctx, inbound, models.StatusFailed)
	default:
		p.setStatus(ctx, inbound, models.StatusProcessed)
	}

	return true
}

// runAIFallback hands the event to the AI agent when no trigger matched.
// Token usage is recorded whenever the API reports it, even if no reply is
// ultimately sent.
func (p *Pipeline) runAIFallback(ctx context.Context, channel *models.ChannelConnection, sub *models.Subscription, event models.InboundEvent, inbound *models.MessageLog) {
	if !channel.AI.Enabled || !sub.AIEnabled {
		p.setStatus(ctx, inbound, models.StatusProcessed)
		return
	}

	if channel.AI.APIKey == "" || sub.RemainingAITokens() <= 0 {
		slog.Warn("AI fallback unavailable",
			"eventID", event.EventID,
			"channelID", channel.ChannelID,
			"remainingTokens", sub.RemainingAITokens())
		return
	}

	history, err := p.Store.GetConversationHistory(ctx, channel.ChannelID, event.SenderID, 6)
	if err != nil {
		slog.Error("Failed to load conversation history", "eventID", event.EventID, "error", err)
	}

	flowNames, err := p.Store.ListFlowNames(ctx, channel.ChannelID)
	if err != nil {
		slog.Error("Failed to list flows for agent", "eventID", event.EventID, "error", err)
	}

	result, err := p.Agent.Call(ctx, services.AgentParams{
		APIKey:       channel.AI.APIKey,
		Model:        channel.AI.Model,
		MaxTokens:    channel.AI.MaxTokens,
		SystemPrompt: p.Store.ResolveSystemPrompt(ctx, channel),
		UserText:     event.Text,
		SenderName:   event.SenderName,
		ChannelKind:  channel.Kind,
		History:      history,
		FlowNames:    flowNames,
	})

	if result != nil && result.TokensUsed > 0 {
		if usageErr := p.Store.IncrementAITokenUsage(ctx, channel.TenantID, result.TokensUsed); usageErr != nil {
			slog.Error("Failed to record AI token usage", "eventID", event.EventID, "error", usageErr)
		}
	}

	if err != nil {
		slog.Error("Agent call failed, sending apology", "eventID", event.EventID, "error", err)
		p.sendDirectReply(ctx, channel, event, inbound, services.CannedApology, models.StatusReplied)
		return
	}

	if result.Action == services.ActionTriggerFlow {
		flow, flowErr := p.Store.GetFlowByName(ctx, channel.ChannelID, result.FlowName)
		if flowErr != nil {
			slog.Error("Agent-selected flow lookup failed", "flowName", result.FlowName, "error", flowErr)
		}
		if flow != nil {
			execResult, execErr := p.Flows.Execute(ctx, services.ExecuteParams{
				Flow:         flow,
				Channel:      channel,
				Subscription: sub,
				SenderID:     event.SenderID,
				SenderName:   event.SenderName,
				EventID:      event.EventID,
				Kind:         event.Kind,
				SourceText:   event.Text,
				SystemPrompt: p.Store.ResolveSystemPrompt(ctx, channel),
			})
			if execErr != nil {
				slog.Error("Agent-selected flow aborted", "flowName", result.FlowName, "error", execErr)
			}
			if execResult.Sent > 0 {
				p.setStatus(ctx, inbound, models.StatusReplied)
			} else {
				p.setStatus(ctx, inbound, models.StatusProcessed)
			}
			return
		}
		slog.Warn("Agent requested unknown flow", "flowName", result.FlowName)
	}

	if result.Content == "" {
		p.setStatus(ctx, inbound, models.StatusProcessedAI)
		return
	}

	p.sendDirectReply(ctx, channel, event, inbound, result.Content, models.StatusRepliedAI)
}

// sendDirectReply dispatches a single text reply outside of any flow, logs
// it, and transitions the inbound record.
func (p *Pipeline) sendDirectReply(ctx context.Context, channel *models.ChannelConnection, event models.InboundEvent, inbound *models.MessageLog, text, outStatus string) {
	reply := services.Reply{Type: models.ReplyText, Text: text}

	outbound := &models.MessageLog{
		EventID:     event.EventID,
		ChannelID:   channel.ChannelID,
		ChannelKind: channel.Kind,
		SenderID:    event.SenderID,
		Direction:   models.DirectionOut,
		Kind:        event.Kind,
		Text:        text,
		MessageType: models.ReplyText,
		IsBot:       true,
		Timestamp:   time.Now(),
	}

	if err := p.Sender.Send(ctx, channel, event.SenderID, reply); err != nil {
		slog.Error("Direct reply send failed",
			"eventID", event.EventID,
			"channelID", channel.ChannelID,
			"error", err)
		outbound.Status = models.StatusFailed
		if logErr := p.Store.AppendLog(ctx, outbound); logErr != nil {
			slog.Error("Failed to log outbound reply", "eventID", event.EventID, "error", logErr)
		}
		p.setStatus(ctx, inbound, models.StatusFailed)
		return
	}

	outbound.Status = outStatus
	if err := p.Store.AppendLog(ctx, outbound); err != nil {
		slog.Error("Failed to log outbound reply", "eventID", event.EventID, "error", err)
	}

	if p.Publisher != nil {
		p.Publisher.BroadcastToChannel(channel.ChannelID, services.LiveEvent{
			Type:     "new_message",
			SenderID: event.SenderID,
			Data:     outbound,
		})
	}

	if outStatus == models.StatusRepliedAI {
		p.setStatus(ctx, inbound, models.StatusProcessedAI)
	} else {
		p.setStatus(ctx, inbound, models.StatusProcessed)
	}
}

func (p *Pipeline) setStatus(ctx context.Context, inbound *models.MessageLog, status string) {
	if err := p.Store.UpdateLogStatus(ctx, inbound.ID, status); err != nil {
		slog.Error("Failed to transition inbound status",
			"logID", inbound.ID.Hex(),
			"status", status,
			"error", err)
		return
	}
	inbound.Status = status
}
