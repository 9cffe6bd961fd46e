package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dipeo/engine/state"
)

// DefaultOpenAIModel is used when person_job config names no model.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIModel implements Model against OpenAI's chat completion API, with
// retry on transient errors (rate limits, 5xx, timeouts).
type OpenAIModel struct {
	apiKey     string
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIModel builds an adapter for modelName, or DefaultOpenAIModel if
// modelName is empty. Retries transient errors up to 3 times, waiting a
// fixed delay between attempts, or a linearly growing one after a rate
// limit error.
func NewOpenAIModel(apiKey, modelName string) *OpenAIModel {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIModel{apiKey: apiKey, modelName: modelName, maxRetries: 3, retryDelay: time.Second}
}

func (m *OpenAIModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error) {
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	if m.apiKey == "" {
		return Output{}, errors.New("openai API key is required")
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.complete(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isOpenAITransient(err) {
			return Output{}, err
		}
		if attempt >= m.maxRetries {
			break
		}
		delay := m.retryDelay
		if isOpenAIRateLimit(err) {
			delay = m.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	}
	return Output{}, fmt.Errorf("openai chat failed after %d retries: %w", m.maxRetries, lastErr)
}

func (m *OpenAIModel) complete(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error) {
	client := openaisdk.NewClient(option.WithAPIKey(m.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.modelName),
		Messages: convertOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertOpenAITools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Output{}, fmt.Errorf("openai API error: %w", err)
	}
	return convertOpenAIResponse(resp), nil
}

func convertOpenAIMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out[i] = openaisdk.SystemMessage(msg.Content)
		case RoleAssistant:
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}

func convertOpenAITools(tools []ToolSpec) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		out[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return out
}

func convertOpenAIResponse(resp *openaisdk.ChatCompletion) Output {
	out := Output{
		Usage: state.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
			Cached: resp.Usage.PromptTokensDetails.CachedTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	if len(msg.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			out.ToolCalls[i] = ToolCall{Name: tc.Function.Name, Input: parseOpenAIToolInput(tc.Function.Arguments)}
		}
	}
	return out
}

func parseOpenAIToolInput(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]interface{}{"_raw": raw}
	}
	return parsed
}

func isOpenAIRateLimit(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func isOpenAITransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "rate limit", "503", "502", "500"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
