// Package llm provides the person_job handler's chat-completion boundary:
// a provider-agnostic interface plus concrete adapters for Anthropic,
// OpenAI, and Google. Handlers speak only Model/Message/Output; the
// provider packages translate to and from each vendor's wire format.
package llm

import (
	"context"

	"github.com/dipeo/engine/state"
)

// Message is one turn in a conversation sent to a Model.
type Message struct {
	// Role identifies the speaker: RoleSystem, RoleUser, or RoleAssistant.
	Role string
	// Content is the message text. May be empty for assistant messages
	// that only carry tool calls.
	Content string
}

// Standard role values, matching the conventions every provider SDK in
// this package assumes.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes one function a Model may call, in JSON Schema form.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a request from the model to invoke a ToolSpec by name.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// Output is what a Chat call produces: text, tool calls, or both, plus
// the token usage the call consumed so the cost package can price it.
type Output struct {
	Text      string
	ToolCalls []ToolCall
	Usage     state.TokenUsage
}

// Model is the provider-agnostic chat-completion boundary person_job
// handlers call through. Implementations must be safe for concurrent use
// across nodes executing in the same step.
type Model interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error)
}
