package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dipeo/engine/bus"
)

// ServeSSE streams every bus event for one execution to the client as
// Server-Sent Events, closing the stream (after a sentinel "done" frame)
// once the execution reaches a terminal status. A periodic heartbeat
// comment keeps intermediary proxies from timing the connection out
// during long-running, low-chatter executions.
func (r *Router) ServeSSE(w http.ResponseWriter, req *http.Request) {
	executionID := executionIDParam(req)
	if executionID == "" {
		http.Error(w, "missing executionID", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := r.Bus.Subscribe(nil, bus.PriorityNormal)
	defer sub.Close()

	heartbeat := time.NewTicker(r.heartbeatInterval())
	defer heartbeat.Stop()

	ctx := req.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if event.ExecutionID != executionID {
				continue
			}
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
			if isTerminal(event.Type) {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

func (r *Router) heartbeatInterval() time.Duration {
	if r.HeartbeatInterval > 0 {
		return r.HeartbeatInterval
	}
	return DefaultHeartbeatInterval
}

func writeSSEEvent(w http.ResponseWriter, event bus.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err
}

func isTerminal(t bus.EventType) bool {
	switch t {
	case bus.EventExecutionCompleted, bus.EventExecutionFailed:
		return true
	default:
		return false
	}
}
