package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"instagram-bot/models"
	"instagram-bot/services"
)

type fakeStore struct {
	channel   *models.ChannelConnection
	gate      services.GateResult
	trigger   *models.Trigger
	campaign  *models.Campaign
	flow      *models.Flow
	flowNames []string
	history   []services.ChatHistory

	channelLookups     int
	logs               []*models.MessageLog
	statusByLog        map[string][]string
	upserts            []services.UpsertCustomerParams
	campaignIncrements int
	tokensRecorded     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{statusByLog: make(map[string][]string)}
}

func (s *fakeStore) GetChannel(ctx context.Context, channelID string) (*models.ChannelConnection, error) {
	s.channelLookups++
	return s.channel, nil
}

func (s *fakeStore) CheckQuota(ctx context.Context, channel *models.ChannelConnection) services.GateResult {
	return s.gate
}

func (s *fakeStore) ResolveTrigger(ctx context.Context, channelID, text, eventType, postID string) (*models.Trigger, error) {
	return s.trigger, nil
}

func (s *fakeStore) GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	return s.campaign, nil
}

func (s *fakeStore) IncrementCampaignReplies(ctx context.Context, id primitive.ObjectID) error {
	s.campaignIncrements++
	return nil
}

func (s *fakeStore) UpsertCustomer(ctx context.Context, params services.UpsertCustomerParams) error {
	s.upserts = append(s.upserts, params)
	return nil
}

func (s *fakeStore) AppendLog(ctx context.Context, entry *models.MessageLog) error {
	entry.ID = primitive.NewObjectID()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *fakeStore) UpdateLogStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	s.statusByLog[id.Hex()] = append(s.statusByLog[id.Hex()], status)
	for _, entry := range s.logs {
		if entry.ID == id {
			entry.Status = status
		}
	}
	return nil
}

func (s *fakeStore) GetConversationHistory(ctx context.Context, channelID, senderID string, limit int) ([]services.ChatHistory, error) {
	return s.history, nil
}

func (s *fakeStore) ResolveSystemPrompt(ctx context.Context, channel *models.ChannelConnection) string {
	return "You are a helpful assistant."
}

func (s *fakeStore) GetFlow(ctx context.Context, id primitive.ObjectID) (*models.Flow, error) {
	if s.flow != nil && s.flow.ID == id {
		return s.flow, nil
	}
	return nil, nil
}

func (s *fakeStore) GetFlowByName(ctx context.Context, channelID, name string) (*models.Flow, error) {
	if s.flow != nil && s.flow.Name == name {
		return s.flow, nil
	}
	return nil, nil
}

func (s *fakeStore) ListFlowNames(ctx context.Context, channelID string) ([]string, error) {
	return s.flowNames, nil
}

func (s *fakeStore) IncrementAITokenUsage(ctx context.Context, tenantID string, tokens int64) error {
	s.tokensRecorded += tokens
	return nil
}

type fakeAgent struct {
	result *services.AgentResult
	err    error
	calls  int
}

func (a *fakeAgent) Call(ctx context.Context, params services.AgentParams) (*services.AgentResult, error) {
	a.calls++
	return a.result, a.err
}

type fakeRunner struct {
	result services.ExecResult
	calls  []services.ExecuteParams
}

func (r *fakeRunner) Execute(ctx context.Context, params services.ExecuteParams) (services.ExecResult, error) {
	r.calls = append(r.calls, params)
	return r.result, nil
}

type fakePipelineSender struct {
	sent []services.Reply
	err  error
}

func (s *fakePipelineSender) Send(ctx context.Context, channel *models.ChannelConnection, recipientID string, reply services.Reply) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, reply)
	return nil
}

func testChannel() *models.ChannelConnection {
	return &models.ChannelConnection{
		ChannelID: "ig-1",
		Kind:      models.ChannelInstagram,
		TenantID:  "tenant-1",
		Name:      "Acme Store",
		Bot:       models.BotConfig{IsActive: true},
		AI: models.AIConfig{
			Enabled: true,
			APIKey:  "key",
		},
	}
}

func testSubscription() *models.Subscription {
	return &models.Subscription{
		TenantID:  "tenant-1",
		Status:    models.SubscriptionActive,
		Limits:    models.PlanLimits{MessageCount: 500, AITokens: 20000},
		AIEnabled: true,
		ExpiresAt: time.Now().AddDate(0, 1, 0),
	}
}

func testEvent() models.InboundEvent {
	return models.InboundEvent{
		EventID:   "evt-1",
		ChannelID: "ig-1",
		Platform:  models.ChannelInstagram,
		SenderID:  "cust-1",
		Text:      "what is the price?",
		Kind:      models.EventDM,
		Timestamp: time.Now().UnixMilli(),
	}
}

func newPipeline(store *fakeStore, agent *fakeAgent, runner *fakeRunner, sender *fakePipelineSender) *Pipeline {
	return &Pipeline{
		Store:  store,
		Agent:  agent,
		Flows:  runner,
		Sender: sender,
	}
}

func TestPipelineDiscardsEchoWithoutSideEffects(t *testing.T) {
	store := newFakeStore()
	pipeline := newPipeline(store, &fakeAgent{}, &fakeRunner{}, &fakePipelineSender{})

	event := testEvent()
	event.IsEcho = true
	pipeline.HandleEvent(context.Background(), event)

	assert.Zero(t, store.channelLookups)
	assert.Empty(t, store.logs)
	assert.Empty(t, store.upserts)
}

func TestPipelineDiscardsUnknownChannel(t *testing.T) {
	store := newFakeStore() // channel stays nil
	pipeline := newPipeline(store, &fakeAgent{}, &fakeRunner{}, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	assert.Empty(t, store.logs)
	assert.Empty(t, store.upserts)
}

func TestPipelineGateDenialLeavesInboundReceived(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: false, Reason: services.ReasonMessageLimitReached}
	runner := &fakeRunner{}
	pipeline := newPipeline(store, &fakeAgent{}, runner, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	// The inbound event is logged but never advances past received
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.StatusReceived, store.logs[0].Status)
	assert.Empty(t, store.statusByLog[store.logs[0].ID.Hex()])

	// Nothing downstream runs
	assert.Empty(t, store.upserts)
	assert.Empty(t, runner.calls)
}

func TestPipelineBotInactiveMarksIgnored(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	store.channel.Bot.IsActive = false
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}
	runner := &fakeRunner{}
	pipeline := newPipeline(store, &fakeAgent{}, runner, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.StatusIgnored, store.logs[0].Status)

	// CRM still ran for the gated event
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "cust-1", store.upserts[0].CustomerID)
	assert.Empty(t, runner.calls)
}

func TestPipelineTriggeredFlowMarksReplied(t *testing.T) {
	flow := &models.Flow{ID: primitive.NewObjectID(), Name: "pricing", IsActive: true}

	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}
	store.trigger = &models.Trigger{ID: primitive.NewObjectID(), FlowID: flow.ID}
	store.flow = flow

	runner := &fakeRunner{result: services.ExecResult{Sent: 2}}
	agent := &fakeAgent{}
	pipeline := newPipeline(store, agent, runner, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	require.Len(t, runner.calls, 1)
	assert.Equal(t, flow.ID, runner.calls[0].Flow.ID)
	assert.Equal(t, "cust-1", runner.calls[0].SenderID)

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.StatusReplied, store.logs[0].Status)

	// No campaign on the trigger, no counter movement, no AI involvement
	assert.Zero(t, store.campaignIncrements)
	assert.Zero(t, agent.calls)
}

func TestPipelineCampaignSuppressesFlow(t *testing.T) {
	flow := &models.Flow{ID: primitive.NewObjectID(), Name: "promo", IsActive: true}

	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}
	store.trigger = &models.Trigger{
		ID:         primitive.NewObjectID(),
		FlowID:     flow.ID,
		CampaignID: primitive.NewObjectID(),
	}
	store.campaign = &models.Campaign{Status: models.CampaignPaused}
	store.flow = flow

	runner := &fakeRunner{result: services.ExecResult{Sent: 1}}
	agent := &fakeAgent{}
	pipeline := newPipeline(store, agent, runner, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	// Suppression blocks the flow and the AI fallback alike
	assert.Empty(t, runner.calls)
	assert.Zero(t, agent.calls)
	assert.Zero(t, store.campaignIncrements)

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.StatusReceived, store.logs[0].Status)
}

func TestPipelineCampaignCountsOnlySentReplies(t *testing.T) {
	flow := &models.Flow{ID: primitive.NewObjectID(), Name: "promo", IsActive: true}

	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}
	store.trigger = &models.Trigger{
		ID:         primitive.NewObjectID(),
		FlowID:     flow.ID,
		CampaignID: primitive.NewObjectID(),
	}
	store.campaign = &models.Campaign{Status: models.CampaignActive, MaxReplies: 100}
	store.flow = flow

	runner := &fakeRunner{result: services.ExecResult{Sent: 1}}
	pipeline := newPipeline(store, &fakeAgent{}, runner, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())
	assert.Equal(t, 1, store.campaignIncrements)

	// A run where every send failed is not counted
	store2 := newFakeStore()
	store2.channel = testChannel()
	store2.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}
	store2.trigger = store.trigger
	store2.campaign = store.campaign
	store2.flow = flow

	runner2 := &fakeRunner{result: services.ExecResult{Failed: 1}}
	pipeline2 := newPipeline(store2, &fakeAgent{}, runner2, &fakePipelineSender{})

	pipeline2.HandleEvent(context.Background(), testEvent())
	assert.Zero(t, store2.campaignIncrements)
	assert.Equal(t, models.StatusFailed, store2.logs[0].Status)
}

func TestPipelineAIDisabledMarksProcessed(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	store.channel.AI.Enabled = false
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}

	agent := &fakeAgent{}
	pipeline := newPipeline(store, agent, &fakeRunner{}, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	assert.Zero(t, agent.calls)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.StatusProcessed, store.logs[0].Status)
}

func TestPipelineAIBudgetExhaustedLeavesReceived(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	sub := testSubscription()
	sub.Usage.AITokensUsed = sub.Limits.AITokens
	store.gate = services.GateResult{Allowed: true, Subscription: sub}

	agent := &fakeAgent{}
	pipeline := newPipeline(store, agent, &fakeRunner{}, &fakePipelineSender{})

	pipeline.HandleEvent(context.Background(), testEvent())

	assert.Zero(t, agent.calls)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.StatusReceived, store.logs[0].Status)
}

func TestPipelineAIFallbackSendsReply(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}

	agent := &fakeAgent{result: &services.AgentResult{
		Content:    "We ship worldwide within 5 days.",
		TokensUsed: 240,
	}}
	sender := &fakePipelineSender{}
	pipeline := newPipeline(store, agent, &fakeRunner{}, sender)

	pipeline.HandleEvent(context.Background(), testEvent())

	// Reply dispatched once, as text
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "We ship worldwide within 5 days.", sender.sent[0].Text)

	// Inbound + outbound logged with AI statuses
	require.Len(t, store.logs, 2)
	assert.Equal(t, models.StatusProcessedAI, store.logs[0].Status)
	assert.Equal(t, models.StatusRepliedAI, store.logs[1].Status)
	assert.True(t, store.logs[1].IsBot)

	// Token usage recorded, CRM ran once
	assert.Equal(t, int64(240), store.tokensRecorded)
	assert.Len(t, store.upserts, 1)
}

func TestPipelineAgentFailureSendsApology(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}

	agent := &fakeAgent{
		result: &services.AgentResult{TokensUsed: 80},
		err:    errors.New("api unavailable"),
	}
	sender := &fakePipelineSender{}
	pipeline := newPipeline(store, agent, &fakeRunner{}, sender)

	pipeline.HandleEvent(context.Background(), testEvent())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, services.CannedApology, sender.sent[0].Text)

	// Tokens the API reported are still billed
	assert.Equal(t, int64(80), store.tokensRecorded)
}

func TestPipelineAgentTriggersFlowByName(t *testing.T) {
	flow := &models.Flow{ID: primitive.NewObjectID(), Name: "shipping_info", IsActive: true}

	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}
	store.flow = flow
	store.flowNames = []string{"shipping_info"}

	agent := &fakeAgent{result: &services.AgentResult{
		Action:     services.ActionTriggerFlow,
		FlowName:   "shipping_info",
		TokensUsed: 150,
	}}
	runner := &fakeRunner{result: services.ExecResult{Sent: 1}}
	sender := &fakePipelineSender{}
	pipeline := newPipeline(store, agent, runner, sender)

	pipeline.HandleEvent(context.Background(), testEvent())

	require.Len(t, runner.calls, 1)
	assert.Equal(t, flow.ID, runner.calls[0].Flow.ID)

	// No direct reply on top of the flow
	assert.Empty(t, sender.sent)
	assert.Equal(t, models.StatusReplied, store.logs[0].Status)
	assert.Equal(t, int64(150), store.tokensRecorded)
}

func TestPipelineDirectReplySendFailure(t *testing.T) {
	store := newFakeStore()
	store.channel = testChannel()
	store.gate = services.GateResult{Allowed: true, Subscription: testSubscription()}

	agent := &fakeAgent{result: &services.AgentResult{Content: "hello", TokensUsed: 40}}
	sender := &fakePipelineSender{err: errors.New("transport down")}
	pipeline := newPipeline(store, agent, &fakeRunner{}, sender)

	pipeline.HandleEvent(context.Background(), testEvent())

	require.Len(t, store.logs, 2)
	assert.Equal(t, models.StatusFailed, store.logs[0].Status)
	assert.Equal(t, models.StatusFailed, store.logs[1].Status)
}
