package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIURL   = "https://api.anthropic.com/v1/messages"
	defaultAgentModel = "claude-3-5-haiku-latest"
	defaultMaxTokens  = 1024
)

// ActionTriggerFlow is returned by the agent when it decides a scripted flow
// should answer instead of free text.
const ActionTriggerFlow = "trigger_flow"

// CannedApology is the safe fallback reply substituted when agent generation
// fails, so the end customer never sees a raw error.
const CannedApology = "I apologize, but I'm having trouble processing your message right now. Please try again later."

// agentRequest represents the request to the Claude API
type agentRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []agentMessage `json:"messages"`
	Tools     []agentTool    `json:"tools,omitempty"`
}

type agentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type agentTool struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema agentInputSchema `json:"input_schema"`
}

type agentInputSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]agentProperty `json:"properties"`
	Required   []string                 `json:"required"`
}

type agentProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type agentContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input agentToolInput `json:"input,omitempty"`
}

type agentToolInput struct {
	FlowName string `json:"flow_name,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type agentResponse struct {
	ID         string              `json:"id"`
	Content    []agentContentBlock `json:"content"`
	Model      string              `json:"model"`
	StopReason string              `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// AgentParams is the context handed to the AI agent for one fallback call.
type AgentParams struct {
	APIKey       string
	Model        string
	MaxTokens    int
	SystemPrompt string
	UserText     string
	SenderName   string
	ChannelKind  string
	History      []ChatHistory
	FlowNames    []string
}

// AgentResult is the agent's structured decision: either free-text Content,
// or Action == ActionTriggerFlow with the flow to run. TokensUsed is always
// reported, whether or not a reply was ultimately sent.
type AgentResult struct {
	Content    string
	Action     string
	FlowName   string
	TokensUsed int64
}

// GenerateParams drives a single ai_response flow step generation.
type GenerateParams struct {
	APIKey       string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Task         string
	SourceText   string
}

// AgentClient calls the Anthropic Messages API.
type AgentClient struct {
	httpClient *http.Client
}

// NewAgentClient returns a client with the API timeout the pipeline expects.
func NewAgentClient() *AgentClient {
	return &AgentClient{
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
}

// Call invokes the agent with conversation history and the channel's flows
// as candidate actions. The agent either replies in free text or requests
// that a named flow be triggered.
func (a *AgentClient) Call(ctx context.Context, params AgentParams) (*AgentResult, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("AI API key not configured")
	}

	var input strings.Builder

	input.WriteString("BUSINESS CONTEXT:\n")
	input.WriteString(params.SystemPrompt)
	input.WriteString("\n\n")

	if len(params.History) > 0 {
		input.WriteString("CONVERSATION HISTORY:\n")
		for _, h := range params.History {
			if h.Role == "user" {
				input.WriteString(fmt.Sprintf("Customer: %s\n", h.Content))
			} else {
				input.WriteString(fmt.Sprintf("Assistant: %s\n", h.Content))
			}
		}
		input.WriteString("\n")
	}

	input.WriteString("CURRENT CUSTOMER MESSAGE:\n")
	if params.SenderName != "" {
		input.WriteString(params.SenderName + ": ")
	}
	input.WriteString(params.UserText)
	input.WriteString("\n\n")

	input.WriteString("YOUR TASK:\n")
	input.WriteString("Reply to the customer in their language, briefly and helpfully.\n")
	if len(params.FlowNames) > 0 {
		input.WriteString("If one of the prepared reply flows clearly answers the customer's request, ")
		input.WriteString("call the trigger_flow tool with its name instead of writing your own reply.\n")
	}

	request := agentRequest{
		Model:     params.Model,
		MaxTokens: params.MaxTokens,
		System:    params.SystemPrompt,
		Messages: []agentMessage{
			{Role: "user", Content: input.String()},
		},
	}
	if request.Model == "" {
		request.Model = defaultAgentModel
	}
	if request.MaxTokens == 0 {
		request.MaxTokens = defaultMaxTokens
	}

	if len(params.FlowNames) > 0 {
		request.Tools = []agentTool{{
			Name:        ActionTriggerFlow,
			Description: "Trigger one of the business's prepared reply flows instead of writing a free-text reply. Only use when a flow clearly matches the customer's request.",
			InputSchema: agentInputSchema{
				Type: "object",
				Properties: map[string]agentProperty{
					"flow_name": {
						Type:        "string",
						Description: "Name of the flow to run",
						Enum:        params.FlowNames,
					},
					"reason": {
						Type:        "string",
						Description: "Brief explanation of why this flow matches",
					},
				},
				Required: []string{"flow_name"},
			},
		}}
	}

	response, err := a.send(ctx, params.APIKey, request)
	if err != nil {
		return nil, err
	}

	result := &AgentResult{
		TokensUsed: response.Usage.InputTokens + response.Usage.OutputTokens,
	}

	for _, block := range response.Content {
		switch block.Type {
		case "tool_use":
			if block.Name == ActionTriggerFlow && block.Input.FlowName != "" {
				result.Action = ActionTriggerFlow
				result.FlowName = block.Input.FlowName
				slog.Info("Agent requested flow trigger",
					"flowName", block.Input.FlowName,
					"reason", block.Input.Reason)
			}
		case "text":
			result.Content = block.Text
		}
	}

	if result.Action == "" && result.Content == "" {
		return result, fmt.Errorf("no response content from agent")
	}

	return result, nil
}

// GenerateStepText produces the text for one ai_response flow step, using a
// hybrid prompt of the channel persona and the step's task.
func (a *AgentClient) GenerateStepText(ctx context.Context, params GenerateParams) (string, int64, error) {
	if params.APIKey == "" {
		return "", 0, fmt.Errorf("AI API key not configured")
	}

	var input strings.Builder
	input.WriteString("TASK:\n")
	input.WriteString(params.Task)
	input.WriteString("\n\nCUSTOMER MESSAGE:\n")
	input.WriteString(params.SourceText)
	input.WriteString("\n\nWrite only the reply text, nothing else.\n")

	request := agentRequest{
		Model:     params.Model,
		MaxTokens: params.MaxTokens,
		System:    params.SystemPrompt,
		Messages: []agentMessage{
			{Role: "user", Content: input.String()},
		},
	}
	if request.Model == "" {
		request.Model = defaultAgentModel
	}
	if request.MaxTokens == 0 {
		request.MaxTokens = defaultMaxTokens
	}

	response, err := a.send(ctx, params.APIKey, request)
	if err != nil {
		return "", 0, err
	}

	tokens := response.Usage.InputTokens + response.Usage.OutputTokens
	for _, block := range response.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, tokens, nil
		}
	}

	return "", tokens, fmt.Errorf("no response content from agent")
}

func (a *AgentClient) send(ctx context.Context, apiKey string, request agentRequest) (*agentResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", anthropicAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) || strings.Contains(err.Error(), "deadline exceeded") {
			slog.Error("Agent API timeout", "error", err)
			return nil, fmt.Errorf("agent API timeout - request took too long")
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Agent API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("agent API error: %s", resp.Status)
	}

	var response agentResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	return &response, nil
}
