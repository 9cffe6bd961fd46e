package handler

import (
	"github.com/jmoiron/sqlx"

	"github.com/dipeo/engine/cost"
	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/llm"
	"github.com/dipeo/engine/router"
)

// Deps bundles every external service a concrete handler needs. Fields
// left nil disable the corresponding node type (a diagram that uses it
// fails at dispatch with engine.ErrNoHandler rather than at construction,
// matching spec.md's "no handler → NODE_ERROR" contract).
type Deps struct {
	Model   llm.Model
	Tracker *cost.Tracker
	DB      *sqlx.DB
	Prompts *router.PromptBroker
}

// Register builds a HandlerRegistry with every node type in deps wired
// in. start/endpoint/code_job/condition/api_job always register, since
// they need no external service.
func Register(deps Deps) *engine.HandlerRegistry {
	reg := engine.NewHandlerRegistry()

	reg.Register(diagram.NodeStart, Start{})
	reg.Register(diagram.NodeEndpoint, Endpoint{})
	reg.Register(diagram.NodeCodeJob, CodeJob{})
	reg.Register(diagram.NodeCondition, Condition{})
	reg.Register(diagram.NodeAPIJob, NewAPIJob())

	if deps.DB != nil {
		reg.Register(diagram.NodeDB, NewDB(deps.DB))
	}
	if deps.Model != nil {
		reg.Register(diagram.NodePersonJob, NewPersonJob(deps.Model, deps.Tracker))
	}
	if deps.Prompts != nil {
		reg.Register(diagram.NodeUserResponse, NewUserResponse(deps.Prompts))
	}

	return reg
}
