package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dipeo/engine/state"
)

// DefaultGoogleModel is used when person_job config names no model.
const DefaultGoogleModel = "gemini-2.5-flash"

// SafetyFilterError reports that Gemini blocked a response on safety
// grounds rather than failing the request outright.
type SafetyFilterError struct {
	Category string
}

func (e *SafetyFilterError) Error() string {
	return fmt.Sprintf("blocked by safety filter: %s", e.Category)
}

// GoogleModel implements Model against Google's Gemini API.
type GoogleModel struct {
	apiKey    string
	modelName string
}

// NewGoogleModel builds an adapter for modelName, or DefaultGoogleModel if
// modelName is empty.
func NewGoogleModel(apiKey, modelName string) *GoogleModel {
	if modelName == "" {
		modelName = DefaultGoogleModel
	}
	return &GoogleModel{apiKey: apiKey, modelName: modelName}
}

func (m *GoogleModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error) {
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	if m.apiKey == "" {
		return Output{}, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return Output{}, fmt.Errorf("google client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(m.modelName)
	systemPrompt, conversation := extractSystemPrompt(messages)
	if systemPrompt != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}
	if len(tools) > 0 {
		model.Tools = convertGoogleTools(tools)
	}

	session := model.StartChat()
	session.History = googleHistory(conversation[:max(len(conversation)-1, 0)])

	var last genai.Part
	if len(conversation) > 0 {
		last = genai.Text(conversation[len(conversation)-1].Content)
	} else {
		last = genai.Text("")
	}

	resp, err := session.SendMessage(ctx, last)
	if err != nil {
		return Output{}, fmt.Errorf("google chat: %w", err)
	}
	return convertGoogleResponse(resp)
}

func googleHistory(messages []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return history
}

func convertGoogleTools(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		decls[i] = &genai.FunctionDeclaration{Name: tool.Name, Description: tool.Description}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertGoogleResponse(resp *genai.GenerateContentResponse) (Output, error) {
	out := Output{}
	if resp.UsageMetadata != nil {
		out.Usage = state.TokenUsage{
			Input:  int64(resp.UsageMetadata.PromptTokenCount),
			Output: int64(resp.UsageMetadata.CandidatesTokenCount),
			Cached: int64(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out, nil
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return Output{}, &SafetyFilterError{Category: "content"}
	}
	if candidate.Content == nil {
		return out, nil
	}
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out, nil
}
