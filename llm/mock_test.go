package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dipeo/engine/llm"
)

func TestMockModelReturnsResponsesInOrderThenRepeatsLast(t *testing.T) {
	m := &llm.MockModel{Responses: []llm.Output{{Text: "first"}, {Text: "second"}}}
	ctx := context.Background()

	out, err := m.Chat(ctx, nil, nil)
	if err != nil || out.Text != "first" {
		t.Fatalf("call 1 = %+v, %v, want first", out, err)
	}
	out, _ = m.Chat(ctx, nil, nil)
	if out.Text != "second" {
		t.Fatalf("call 2 = %+v, want second", out)
	}
	out, _ = m.Chat(ctx, nil, nil)
	if out.Text != "second" {
		t.Fatalf("call 3 = %+v, want second (repeats last)", out)
	}
	if m.CallCount() != 3 {
		t.Fatalf("CallCount = %d, want 3", m.CallCount())
	}
}

func TestMockModelReturnsConfiguredError(t *testing.T) {
	wantErr := errors.New("boom")
	m := &llm.MockModel{Err: wantErr}

	_, err := m.Chat(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Chat err = %v, want %v", err, wantErr)
	}
}

func TestMockModelRespectsCancelledContext(t *testing.T) {
	m := &llm.MockModel{Responses: []llm.Output{{Text: "x"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Chat(ctx, nil, nil); err == nil {
		t.Fatal("Chat with cancelled context: want error, got nil")
	}
}

func TestMockModelRecordsCallHistory(t *testing.T) {
	m := &llm.MockModel{Responses: []llm.Output{{Text: "x"}}}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
	tools := []llm.ToolSpec{{Name: "lookup"}}

	if _, err := m.Chat(context.Background(), msgs, tools); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(m.Calls) != 1 {
		t.Fatalf("Calls len = %d, want 1", len(m.Calls))
	}
	if m.Calls[0].Messages[0].Content != "hi" || m.Calls[0].Tools[0].Name != "lookup" {
		t.Fatalf("recorded call = %+v, want messages/tools preserved", m.Calls[0])
	}

	m.Reset()
	if m.CallCount() != 0 {
		t.Fatalf("CallCount after Reset = %d, want 0", m.CallCount())
	}
}

func TestRateLimitedDelegatesToWrappedModel(t *testing.T) {
	mock := &llm.MockModel{Responses: []llm.Output{{Text: "limited"}}}
	rl := llm.NewRateLimited(mock, 1000, 10)

	out, err := rl.Chat(context.Background(), nil, nil)
	if err != nil || out.Text != "limited" {
		t.Fatalf("Chat = %+v, %v, want limited", out, err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("wrapped model CallCount = %d, want 1", mock.CallCount())
	}
}

func TestRateLimitedRespectsCancelledContext(t *testing.T) {
	mock := &llm.MockModel{Responses: []llm.Output{{Text: "x"}}}
	rl := llm.NewRateLimited(mock, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rl.Chat(ctx, nil, nil); err == nil {
		t.Fatal("Chat with cancelled context: want error, got nil")
	}
}
