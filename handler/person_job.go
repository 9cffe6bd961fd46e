package handler

import (
	"fmt"

	"github.com/dipeo/engine/cost"
	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/llm"
	"github.com/dipeo/engine/state"
)

// PersonJob drives one LLM turn: it renders config["prompt"] (optionally
// prefixed by config["system_prompt"]) against the resolved input bundle,
// calls the configured llm.Model, prices the call through a shared
// cost.Tracker, and folds the provider's usage into the output metadata
// so state.CompleteNode's I5 aggregation picks it up automatically.
//
// Conversation continuity across iterations rides the same edge-based
// input resolution every other node uses: a feedback edge carrying
// ContentConversation payload lands in req.Input and is appended as
// prior turns rather than tracked as hidden handler state.
type PersonJob struct {
	Model   llm.Model
	Tracker *cost.Tracker
}

// NewPersonJob wires model and tracker into a handler. tracker may be nil
// to skip cost accounting (e.g. in tests using llm.MockModel).
func NewPersonJob(model llm.Model, tracker *cost.Tracker) *PersonJob {
	return &PersonJob{Model: model, Tracker: tracker}
}

func (p *PersonJob) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	cfg := req.Node.Config
	prompt, _ := cfg["prompt"].(string)
	systemPrompt, _ := cfg["system_prompt"].(string)
	modelName, _ := cfg["model"].(string)

	messages := conversationHistory(req.Input)
	if systemPrompt != "" {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, messages...)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	out, err := p.Model.Chat(req.Ctx, messages, nil)
	if err != nil {
		return state.NodeOutput{}, fmt.Errorf("person_job %s: %w", req.Node.ID, err)
	}

	if p.Tracker != nil && modelName != "" {
		p.Tracker.Record(modelName, out.Usage, req.Node.ID)
	}

	conversation := append(messages, llm.Message{Role: llm.RoleAssistant, Content: out.Text})

	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value: map[string]any{
			"default":      out.Text,
			"conversation": conversation,
		},
		Metadata: state.OutputMetadata{TokenUsage: out.Usage},
	}, nil
}

// conversationHistory extracts a prior turn sequence from the resolved
// input bundle, if a feedback edge supplied one under "conversation".
// Any other shape is ignored; the node still runs with an empty history.
func conversationHistory(input map[string]any) []llm.Message {
	raw, ok := input["conversation"]
	if !ok {
		return nil
	}
	history, ok := raw.([]llm.Message)
	if !ok {
		return nil
	}
	return append([]llm.Message(nil), history...)
}
