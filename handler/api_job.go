package handler

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/state"
)

// RetryMode names the backoff shape api_job's retry config selects
// between, per spec.md §5's "exponential/linear/fixed-delay policy".
type RetryMode string

const (
	RetryExponential RetryMode = "exponential"
	RetryLinear      RetryMode = "linear"
	RetryFixed       RetryMode = "fixed"
)

// APIJob is the generic HTTP provider layer: it issues one request per
// execution, retrying transient failures (connection errors, 429, 5xx)
// under a configurable backoff policy and honoring a server's
// Retry-After header when present. Grounded on the teacher's
// graph/tool/http.go HTTPTool, generalized from a single GET/POST call
// into a self-retrying node handler.
type APIJob struct {
	Client *http.Client
}

// NewAPIJob returns an APIJob with a default client (timeouts are
// enforced by the executor's per-node context deadline, not the client
// itself, matching HTTPTool's "timeout handled via context" design).
func NewAPIJob() *APIJob {
	return &APIJob{Client: &http.Client{}}
}

func (a *APIJob) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	cfg := req.Node.Config

	urlStr, _ := cfg["url"].(string)
	if urlStr == "" {
		return state.NodeOutput{}, fmt.Errorf("api_job %s: config.url is required", req.Node.ID)
	}
	method := strings.ToUpper(stringOr(cfg["method"], "GET"))

	maxAttempts := intOr(cfg["max_attempts"], 3)
	mode := RetryMode(stringOr(cfg["retry_mode"], string(RetryExponential)))
	baseDelay := durationOr(cfg["base_delay_ms"], 200*time.Millisecond)
	maxDelay := durationOr(cfg["max_delay_ms"], 10*time.Second)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Ctx.Done():
				return state.NodeOutput{}, req.Ctx.Err()
			case <-time.After(lastErr.(*retryableStatus).delay(mode, attempt-1, baseDelay, maxDelay)):
			}
		}

		out, retryable, err := a.attempt(req, method, urlStr)
		if err == nil {
			return out, nil
		}
		if !retryable || attempt == maxAttempts-1 {
			return state.NodeOutput{}, err
		}
		lastErr = err
	}
	return state.NodeOutput{}, fmt.Errorf("api_job %s: exhausted retries: %w", req.Node.ID, lastErr)
}

// retryableStatus carries enough context from a failed attempt to compute
// the next delay, including a server-supplied Retry-After override.
type retryableStatus struct {
	err        error
	retryAfter time.Duration // zero means "no server override"
}

func (r *retryableStatus) Error() string { return r.err.Error() }

func (r *retryableStatus) delay(mode RetryMode, attempt int, base, max time.Duration) time.Duration {
	if r.retryAfter > 0 {
		return r.retryAfter
	}
	var d time.Duration
	switch mode {
	case RetryLinear:
		d = base * time.Duration(attempt+1)
	case RetryFixed:
		d = base
	default:
		d = base * (1 << attempt)
	}
	if max > 0 && d > max {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(base)+1))
}

func (a *APIJob) attempt(req engine.ExecRequest, method, urlStr string) (state.NodeOutput, bool, error) {
	cfg := req.Node.Config

	var body io.Reader
	if bodyStr, ok := cfg["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	httpReq, err := http.NewRequestWithContext(req.Ctx, method, urlStr, body)
	if err != nil {
		return state.NodeOutput{}, false, fmt.Errorf("api_job %s: build request: %w", req.Node.ID, err)
	}
	if headers, ok := cfg["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				httpReq.Header.Set(k, s)
			}
		}
	}

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		return state.NodeOutput{}, true, &retryableStatus{err: fmt.Errorf("api_job %s: %w", req.Node.ID, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return state.NodeOutput{}, true, &retryableStatus{err: fmt.Errorf("api_job %s: read body: %w", req.Node.ID, err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return state.NodeOutput{}, true, &retryableStatus{
			err:        fmt.Errorf("api_job %s: status %d", req.Node.ID, resp.StatusCode),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	headers := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) == 1 {
			headers[k] = v[0]
		} else {
			headers[k] = v
		}
	}

	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value: map[string]any{"default": map[string]interface{}{
			"status_code": resp.StatusCode,
			"headers":     headers,
			"body":        string(respBody),
		}},
	}, false, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at)
	}
	return 0
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func intOr(v any, fallback int) int {
	if n, ok := v.(int); ok && n > 0 {
		return n
	}
	return fallback
}

func durationOr(v any, fallback time.Duration) time.Duration {
	if n, ok := v.(int); ok && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
