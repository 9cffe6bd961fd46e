package llm

import (
	"context"
	"sync"
)

// MockModel is the test double for Model, exercised by this package's
// tests and used by cmd/enginectl when no provider is configured, so
// person_job nodes run without any network call.
type MockModel struct {
	// Responses is returned in order, one per Chat call; the last entry
	// repeats once exhausted.
	Responses []Output
	// Err, if set, is returned instead of a response.
	Err error

	Calls []MockCall

	mu        sync.Mutex
	callIndex int
}

// MockCall records one Chat invocation for assertions.
type MockCall struct {
	Messages []Message
	Tools    []ToolSpec
}

func (m *MockModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error) {
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return Output{}, m.Err
	}
	if len(m.Responses) == 0 {
		return Output{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears call history, for reuse across test cases.
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount reports how many times Chat has been called.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
