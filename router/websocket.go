package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dipeo/engine/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Diagram execution is driven from the same origin the web UI is
	// served from in every deployment this engine targets; a stricter
	// allow-list belongs to the reverse proxy in front of it, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundMessage is what a client sends to answer an outstanding
// user_response prompt.
type inboundMessage struct {
	NodeID string `json:"node_id"`
	Value  string `json:"value"`
}

// ServeWebSocket upgrades to a websocket that streams the same bus events
// ServeSSE does, plus an inbound half: any message the client sends is
// treated as the answer to a pending user_response prompt for the node id
// it names.
func (r *Router) ServeWebSocket(w http.ResponseWriter, req *http.Request) {
	executionID := executionIDParam(req)
	if executionID == "" {
		http.Error(w, "missing executionID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := r.Bus.Subscribe(nil, bus.PriorityHigh)
	defer sub.Close()

	done := make(chan struct{})
	go r.readInbound(conn, executionID, done)

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if event.ExecutionID != executionID {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if isTerminal(event.Type) {
				return
			}
		}
	}
}

// readInbound pumps client messages into the prompt broker until the
// connection closes, signaling done so the write loop above can exit too.
func (r *Router) readInbound(conn *websocket.Conn, executionID string, done chan<- struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.NodeID != "" {
			r.Prompts.Answer(executionID, msg.NodeID, msg.Value)
		}
	}
}
