package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pico/internal/llm"
	"pico/internal/llm/mockclient"
	"pico/internal/state"
	"pico/internal/tooling"
)

// stubTool counts invocations and returns a fixed result. It can also
// trigger a context cancel to simulate a user interrupt mid-call.
type stubTool struct {
	mu     sync.Mutex
	name   string
	result string
	err    error
	cancel context.CancelFunc
	calls  int
}

func (s *stubTool) Definition() tooling.ToolDefinition {
	return tooling.ToolDefinition{
		Type: "function",
		Function: tooling.ToolFunction{
			Name:        s.name,
			Description: "test stub",
			Parameters:  map[string]any{"type": "object"},
		},
	}
}

func (s *stubTool) Call(_ context.Context, _ map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.cancel != nil {
		s.cancel()
		return "", context.Canceled
	}
	return s.result, s.err
}

func (s *stubTool) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestManager(t *testing.T) *state.Manager {
	t.Helper()
	mgr, err := state.NewManager(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func yoloGate(t *testing.T) *ConfirmationGate {
	t.Helper()
	gate, err := NewConfirmationGate(true, nil, nil)
	if err != nil {
		t.Fatalf("NewConfirmationGate: %v", err)
	}
	return gate
}

func assistantWithCalls(names ...string) state.Message {
	msg := state.Message{Role: "assistant"}
	for i, name := range names {
		msg.ToolCalls = append(msg.ToolCalls, state.ToolCall{
			ID:       fmt.Sprintf("call-%d", i+1),
			Type:     "function",
			Function: state.FunctionCall{Name: name, Arguments: "{}"},
		})
	}
	return msg
}

func toolMessages(conv *state.Conversation) []state.Message {
	var out []state.Message
	for _, msg := range conv.Messages() {
		if msg.Role == "tool" {
			out = append(out, msg)
		}
	}
	return out
}

func TestTurnLimitExhaustedMidBatch(t *testing.T) {
	stub := &stubTool{name: "stub", result: "ok"}
	mgr := newTestManager(t)
	script := mockclient.NewScripted().
		Enqueue(assistantWithCalls("stub", "stub", "stub"))

	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(stub), yoloGate(t), "test-model", 0, 2, Hooks{})

	_, _, err := loop.Run(context.Background(), "do three things")
	if !errors.Is(err, ErrTurnLimit) {
		t.Fatalf("Run error = %v, want ErrTurnLimit", err)
	}
	if stub.Calls() != 2 {
		t.Errorf("tool executed %d times, want 2", stub.Calls())
	}
	if script.Calls() != 1 {
		t.Errorf("provider called %d times, want 1 (no call after limit)", script.Calls())
	}

	results := toolMessages(mgr.Current())
	if len(results) != 3 {
		t.Fatalf("tool results = %d, want one per call", len(results))
	}
	for i := 0; i < 2; i++ {
		if results[i].Content != "ok" {
			t.Errorf("result %d = %q, want ok", i, results[i].Content)
		}
	}
	if !strings.Contains(results[2].Content, "limit") {
		t.Errorf("third result = %q, want limit notice", results[2].Content)
	}
	if results[2].ToolCallID != "call-3" {
		t.Errorf("third result bound to %q, want call-3", results[2].ToolCallID)
	}
}

func TestDeniedCallRecordsResultAndTurnContinues(t *testing.T) {
	stub := &stubTool{name: "bash", result: "should not run"}
	mgr := newTestManager(t)
	script := mockclient.NewScripted().
		Enqueue(assistantWithCalls("bash")).
		Enqueue(state.Message{Role: "assistant", Content: "understood, stopping"})

	gate, err := NewConfirmationGate(false, nil, denyAll{})
	if err != nil {
		t.Fatalf("NewConfirmationGate: %v", err)
	}
	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(stub), gate, "test-model", 0, 10, Hooks{})

	response, _, err := loop.Run(context.Background(), "rm everything")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if response != "understood, stopping" {
		t.Errorf("response = %q", response)
	}
	if stub.Calls() != 0 {
		t.Errorf("denied tool ran %d times", stub.Calls())
	}

	results := toolMessages(mgr.Current())
	if len(results) != 1 || results[0].Content != "Action cancelled by user" {
		t.Fatalf("tool results = %+v, want single denial", results)
	}
	if script.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2 (turn continues after denial)", script.Calls())
	}
}

func TestCancelMidBatchSkipsRemainingCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := &stubTool{name: "stub", cancel: cancel}
	mgr := newTestManager(t)
	script := mockclient.NewScripted().
		Enqueue(assistantWithCalls("stub", "stub", "stub"))

	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(stub), yoloGate(t), "test-model", 0, 10, Hooks{})

	_, _, err := loop.Run(ctx, "interrupt me")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if stub.Calls() != 1 {
		t.Errorf("tool ran %d times, want 1", stub.Calls())
	}

	results := toolMessages(mgr.Current())
	if len(results) != 3 {
		t.Fatalf("tool results = %d, want one per call", len(results))
	}
	for _, msg := range results[1:] {
		if msg.Content != "skipped: turn cancelled" {
			t.Errorf("skipped result = %q", msg.Content)
		}
	}
}

func TestUnknownToolGetsErrorResult(t *testing.T) {
	mgr := newTestManager(t)
	script := mockclient.NewScripted().
		Enqueue(assistantWithCalls("no_such_tool")).
		Enqueue(state.Message{Role: "assistant", Content: "sorry"})

	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(), yoloGate(t), "test-model", 0, 10, Hooks{})

	if _, _, err := loop.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := toolMessages(mgr.Current())
	if len(results) != 1 || !strings.Contains(results[0].Content, "not registered") {
		t.Fatalf("tool results = %+v", results)
	}
}

func TestUnavailableBrowserLandsAsToolResult(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	mgr := newTestManager(t)
	browserCall := state.Message{Role: "assistant", ToolCalls: []state.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: state.FunctionCall{Name: "agent_browser", Arguments: `{"command":"open https://example.com"}`},
	}}}
	script := mockclient.NewScripted().
		Enqueue(browserCall).
		Enqueue(state.Message{Role: "assistant", Content: "no browser here"})

	registry := tooling.NewRegistry(tooling.NewBrowserTool(0))
	loop := NewTurnLoop(script, mgr, registry, yoloGate(t), "test-model", 0, 10, Hooks{})

	response, _, err := loop.Run(context.Background(), "open the page")
	if err != nil {
		t.Fatalf("Run: %v (tool unavailability must not abort the turn)", err)
	}
	if response != "no browser here" {
		t.Errorf("response = %q", response)
	}
	results := toolMessages(mgr.Current())
	if len(results) != 1 || !strings.Contains(results[0].Content, "not installed") {
		t.Fatalf("tool results = %+v, want unavailable notice", results)
	}
}

func TestNonRetryableProviderErrorFailsFast(t *testing.T) {
	mgr := newTestManager(t)
	authErr := llm.NewProviderError("openrouter", llm.ErrorTypeAuth, "401", "bad key")
	script := mockclient.NewScripted().EnqueueError(authErr)

	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(), yoloGate(t), "test-model", 0, 10, Hooks{})

	_, _, err := loop.Run(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("Run error = %v, want auth failure", err)
	}
	if script.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on auth errors)", script.Calls())
	}
}

func TestRetryableProviderErrorIsRetried(t *testing.T) {
	mgr := newTestManager(t)
	downErr := llm.NewProviderError("openrouter", llm.ErrorTypeProviderDown, "502", "upstream hiccup")
	script := mockclient.NewScripted().
		EnqueueError(downErr).
		Enqueue(state.Message{Role: "assistant", Content: "recovered"})

	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(), yoloGate(t), "test-model", 0, 10, Hooks{})

	response, _, err := loop.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if response != "recovered" {
		t.Errorf("response = %q", response)
	}
	if script.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", script.Calls())
	}
}

type denyAll struct{}

func (denyAll) Confirm(string) (bool, error) { return false, nil }
