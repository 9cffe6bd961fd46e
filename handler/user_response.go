package handler

import (
	"fmt"

	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/router"
	"github.com/dipeo/engine/state"
)

// UserResponse blocks until a client answers this node's prompt over the
// router's websocket transport, modeling human-in-the-loop input without
// any dedicated UI surface: the node's own execution goroutine simply
// waits on router.PromptBroker, which every other handler leaves alone.
type UserResponse struct {
	Prompts *router.PromptBroker
}

// NewUserResponse wires a handler to the router's shared prompt broker.
func NewUserResponse(prompts *router.PromptBroker) *UserResponse {
	return &UserResponse{Prompts: prompts}
}

func (u *UserResponse) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	answer, err := u.Prompts.Await(req.Ctx, req.ExecutionID, req.Node.ID)
	if err != nil {
		return state.NodeOutput{}, fmt.Errorf("user_response %s: %w", req.Node.ID, err)
	}
	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value:  map[string]any{"default": answer},
	}, nil
}
