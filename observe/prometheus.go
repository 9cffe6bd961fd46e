package observe

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dipeo/engine/bus"
)

// PrometheusObserver adapts the teacher's PrometheusMetrics
// (graph/metrics.go) from its six hand-called Increment*/Update* methods
// to an Observer driven entirely by bus events: every metric update here
// is a reaction to one event type rather than a call threaded through the
// engine by hand.
//
// Metrics exposed, all namespaced "dipeo_":
//   - inflight_nodes (gauge, labels run_id): nodes currently dispatched.
//   - queue_depth (gauge, labels run_id): set externally via SetQueueDepth,
//     since queue depth is an iterator-internal detail with no bus event.
//   - step_latency_ms (histogram, labels run_id, node_id, status): node
//     duration, read from Meta["duration_ms"] on node_completed/node_failed.
//   - retries_total (counter, labels run_id, node_id): on each
//     node_completed/node_failed with Meta["attempts"] > 1, increased by
//     attempts - 1.
//   - node_errors_total (counter, labels run_id, node_id): node_failed count.
//   - executions_completed_total (counter, labels status): execution_completed
//     vs execution_failed count.
type PrometheusObserver struct {
	inflightNodes *prometheus.GaugeVec
	queueDepth    *prometheus.GaugeVec
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	nodeErrors    *prometheus.CounterVec
	executions    *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusObserver registers all dipeo_* metrics with registry. A nil
// registry uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(registry prometheus.Registerer) *PrometheusObserver {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusObserver{
		enabled: true,
		inflightNodes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dipeo",
			Name:      "inflight_nodes",
			Help:      "Current number of nodes dispatched concurrently for an execution",
		}, []string{"run_id"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dipeo",
			Name:      "queue_depth",
			Help:      "Number of nodes waiting in the execution iterator's frontier",
		}, []string{"run_id"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dipeo",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"run_id", "node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dipeo",
			Name:      "retries_total",
			Help:      "Cumulative retry attempts across all nodes",
		}, []string{"run_id", "node_id"}),
		nodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dipeo",
			Name:      "node_errors_total",
			Help:      "Cumulative count of nodes that ended in FAILED",
		}, []string{"run_id", "node_id"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dipeo",
			Name:      "executions_completed_total",
			Help:      "Cumulative count of executions reaching a terminal status",
		}, []string{"status"}),
	}
}

// Notify implements Observer, translating bus events into metric updates.
func (p *PrometheusObserver) Notify(event bus.Event) {
	p.mu.RLock()
	enabled := p.enabled
	p.mu.RUnlock()
	if !enabled {
		return
	}

	switch event.Type {
	case bus.EventNodeStarted:
		p.inflightNodes.WithLabelValues(event.ExecutionID).Inc()
	case bus.EventNodeCompleted:
		p.inflightNodes.WithLabelValues(event.ExecutionID).Dec()
		p.recordStep(event, "success")
	case bus.EventNodeFailed:
		p.inflightNodes.WithLabelValues(event.ExecutionID).Dec()
		p.nodeErrors.WithLabelValues(event.ExecutionID, event.NodeID).Inc()
		p.recordStep(event, "error")
	case bus.EventExecutionCompleted:
		p.executions.WithLabelValues("completed").Inc()
	case bus.EventExecutionFailed:
		p.executions.WithLabelValues("failed").Inc()
	}
}

func (p *PrometheusObserver) recordStep(event bus.Event, status string) {
	if attempts, ok := event.Meta["attempts"].(int); ok && attempts > 1 {
		p.retries.WithLabelValues(event.ExecutionID, event.NodeID).Add(float64(attempts - 1))
	}
	durationMs, ok := event.Meta["duration_ms"].(int64)
	if !ok {
		return
	}
	p.stepLatency.WithLabelValues(event.ExecutionID, event.NodeID, status).Observe(float64(durationMs))
}

// Close is a no-op: Prometheus collectors stay registered for the life of
// the process, independent of any one Attach subscription.
func (p *PrometheusObserver) Close() {}

// SetQueueDepth reports the iterator's current frontier size. It is set
// by the caller directly rather than derived from a bus event, since no
// event type carries queue depth; no engine code calls it.
func (p *PrometheusObserver) SetQueueDepth(executionID string, depth int) {
	p.queueDepth.WithLabelValues(executionID).Set(float64(depth))
}

// Disable stops metric recording without unregistering collectors.
func (p *PrometheusObserver) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// Enable resumes metric recording after Disable.
func (p *PrometheusObserver) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}
