// Package router implements the Message Router (C5): it fans the event
// bus out to per-execution HTTP subscribers, over both Server-Sent Events
// (for one-way progress streaming) and a websocket (for the bidirectional
// channel user_response nodes need to collect a client's answer).
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dipeo/engine/bus"
)

// DefaultHeartbeatInterval is how often an idle SSE stream sends a
// keep-alive comment so intermediary proxies don't time out the connection.
const DefaultHeartbeatInterval = 15 * time.Second

// Router wires the bus to HTTP subscribers. It holds no per-execution
// state of its own — every connection subscribes to the shared bus and
// filters to its execution id, so router restarts never lose in-flight
// executions (they live in the store, not here).
type Router struct {
	Bus               *bus.Bus
	HeartbeatInterval time.Duration

	// Prompts is how a user_response handler asks the router to collect
	// one client answer and how the websocket handler delivers it back.
	Prompts *PromptBroker
}

// New builds a Router over an existing bus.Bus.
func New(b *bus.Bus) *Router {
	return &Router{Bus: b, HeartbeatInterval: DefaultHeartbeatInterval, Prompts: NewPromptBroker()}
}

// Mux returns a chi.Router with the execution streaming endpoints
// mounted, ready to be served directly or mounted under a larger API.
func (r *Router) Mux() chi.Router {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)

	mux.Get("/executions/{executionID}/events", r.ServeSSE)
	mux.Get("/executions/{executionID}/ws", r.ServeWebSocket)
	return mux
}

func executionIDParam(req *http.Request) string {
	return chi.URLParam(req, "executionID")
}
