package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dipeo/engine/bus"
)

// OTelObserver adapts the teacher's OTelEmitter (graph/emit/otel.go) from
// an engine-pushed Emitter to a bus-subscribed Observer: each event still
// becomes one immediately-ended span (a point-in-time event, not a
// long-lived span covering the node's duration), named after the event
// type, with RunID/NodeID/Step and every Meta field attached. This is the
// shape sub-execution tracing needs: a child diagram's spans nest under
// whatever parent span is active in the context given to the observer at
// construction, so
// distributed tracing of sub-execution propagation falls out of normal
// OTel context propagation rather than anything DiPeO-specific.
type OTelObserver struct {
	tracer trace.Tracer
	ctx    context.Context
}

// NewOTelObserver wires an observer to tracer, using ctx as the base
// context every span is created from (carrying whatever parent span is
// active when a sub-execution starts).
func NewOTelObserver(tracer trace.Tracer, ctx context.Context) *OTelObserver {
	if ctx == nil {
		ctx = context.Background()
	}
	return &OTelObserver{tracer: tracer, ctx: ctx}
}

// Notify implements Observer.
func (o *OTelObserver) Notify(event bus.Event) {
	_, span := o.tracer.Start(o.ctx, string(event.Type))
	defer span.End()

	span.SetAttributes(
		attribute.String("execution_id", event.ExecutionID),
		attribute.String("diagram_id", event.DiagramID),
		attribute.Int("step", event.Step),
	)
	if event.NodeID != "" {
		span.SetAttributes(attribute.String("node_id", event.NodeID))
	}
	for k, v := range event.Meta {
		span.SetAttributes(metaAttribute(k, v))
	}

	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// Close is a no-op: the tracer provider, not this observer, owns span
// export and shutdown.
func (o *OTelObserver) Close() {}

func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
