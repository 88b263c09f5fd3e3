package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pico/internal/llm"
	"pico/internal/logging"
	"pico/internal/state"
	"pico/internal/tooling"
)

// ErrTurnLimit signals that the tool call budget for one turn ran out. The
// conversation history stays intact; the next user message starts a fresh
// budget.
var ErrTurnLimit = errors.New("tool call limit reached for this turn")

const deniedResult = "Action cancelled by user"

// maxToolResultSize caps how many bytes of a tool result enter the history.
const maxToolResultSize = 50000

// Hooks lets the caller observe tool activity for display purposes.
type Hooks struct {
	OnToolCall   func(name, arguments string)
	OnToolResult func(name, result string, failed bool)
}

// TurnLoop drives one user turn: it alternates provider calls and tool
// execution until the model answers without tool calls, the budget runs
// out, or the context is cancelled. Tool calls run sequentially in request
// order and every call gets exactly one tool result message.
type TurnLoop struct {
	client      llm.Client
	states      *state.Manager
	tools       *tooling.Registry
	gate        *ConfirmationGate
	model       string
	temperature float64
	limit       int
	hooks       Hooks
}

func NewTurnLoop(client llm.Client, states *state.Manager, tools *tooling.Registry, gate *ConfirmationGate, model string, temperature float64, limit int, hooks Hooks) *TurnLoop {
	if limit <= 0 {
		limit = 50
	}
	return &TurnLoop{
		client:      client,
		states:      states,
		tools:       tools,
		gate:        gate,
		model:       model,
		temperature: temperature,
		limit:       limit,
		hooks:       hooks,
	}
}

// Run appends the user input to the current conversation and executes the
// turn. It returns the final assistant text and finish reason.
func (l *TurnLoop) Run(ctx context.Context, userInput string) (string, string, error) {
	conv := l.states.Current()
	conv.Append(state.Message{Role: "user", Content: userInput})
	if err := l.states.Save(conv); err != nil {
		return "", "", fmt.Errorf("save conversation: %w", err)
	}

	used := 0
	for {
		req := llm.ChatRequest{
			Model:       l.model,
			Messages:    conv.Messages(),
			Tools:       l.tools.Definitions(),
			Temperature: l.temperature,
		}
		logging.DevLog("invoking provider with %d messages", len(req.Messages))

		resp, err := l.callProviderWithRetry(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return "", "", context.Canceled
			}
			return "", "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", "", errors.New("no choices returned")
		}
		if resp.Usage != nil {
			logging.DevLog("token usage: prompt=%d completion=%d total=%d",
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
		}

		choice := resp.Choices[0]
		conv.Append(choice.Message)
		if err := l.states.Save(conv); err != nil {
			return "", "", fmt.Errorf("save conversation: %w", err)
		}

		if len(choice.Message.ToolCalls) == 0 {
			return choice.Message.Content, choice.FinishReason, nil
		}

		overBudget, err := l.processToolCalls(ctx, conv, choice.Message.ToolCalls, &used)
		if err != nil {
			return "", "", err
		}
		if overBudget {
			return "", "", ErrTurnLimit
		}
	}
}

// processToolCalls executes a batch sequentially. Every call receives
// exactly one tool result message, including denied, cancelled, and
// over-budget calls. It reports overBudget=true once the per-turn counter
// is exhausted, after recording a limit result for each unexecuted call.
func (l *TurnLoop) processToolCalls(ctx context.Context, conv *state.Conversation, calls []state.ToolCall, used *int) (bool, error) {
	overBudget := false
	cancelled := false
	for _, call := range calls {
		var result string
		failed := false

		switch {
		case cancelled:
			result = "skipped: turn cancelled"
			failed = true
		case ctx.Err() != nil:
			cancelled = true
			result = "cancelled: interrupted by user"
			failed = true
		case *used >= l.limit:
			overBudget = true
			result = fmt.Sprintf("tool call limit (%d) exceeded for this turn; call not executed", l.limit)
			failed = true
			logging.UserLog("tool call limit reached, skipping %s", call.Function.Name)
		default:
			*used++
			result, failed = l.executeCall(ctx, call)
			if failed && ctx.Err() != nil {
				cancelled = true
			}
		}

		conv.Append(state.Message{Role: "tool", Name: call.Function.Name, Content: result, ToolCallID: call.ID})
		if l.hooks.OnToolResult != nil {
			l.hooks.OnToolResult(call.Function.Name, result, failed)
		}
		if err := l.states.Save(conv); err != nil {
			return false, fmt.Errorf("save tool result: %w", err)
		}
	}
	if cancelled {
		return false, context.Canceled
	}
	return overBudget, nil
}

func (l *TurnLoop) executeCall(ctx context.Context, call state.ToolCall) (string, bool) {
	if l.hooks.OnToolCall != nil {
		l.hooks.OnToolCall(call.Function.Name, call.Function.Arguments)
	}

	tool, ok := l.tools.Lookup(call.Function.Name)
	if !ok {
		logging.ErrorLog("tool %s not registered", call.Function.Name)
		return fmt.Sprintf("tool %s not registered", call.Function.Name), true
	}

	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logging.ErrorLog("invalid args for %s: %v", call.Function.Name, err)
			return fmt.Sprintf("invalid args for %s: %v", call.Function.Name, err), true
		}
	}

	approved, err := l.gate.Approve(call.Function.Name, args)
	if err != nil {
		logging.ErrorLog("confirmation failed for %s: %v", call.Function.Name, err)
		return fmt.Sprintf("confirmation failed: %v", err), true
	}
	if !approved {
		logging.UserLog("denied tool %s", call.Function.Name)
		return deniedResult, true
	}

	start := time.Now()
	result, err := tool.Call(ctx, args)
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logging.ErrorLog("tool %s failed after %s: %v", call.Function.Name, dur, err)
		return fmt.Sprintf("tool error: %v", err), true
	}
	logging.DevLog("tool %s completed: %d bytes in %s", call.Function.Name, len(result), dur)
	if len(result) > maxToolResultSize {
		result = result[:maxToolResultSize] + fmt.Sprintf("\n\n[TRUNCATED: tool result too large (%d chars). Use more specific filters or pagination.]", len(result))
	}
	return result, false
}

func (l *TurnLoop) callProviderWithRetry(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	const (
		maxRetries   = 5
		initialDelay = time.Second
		maxDelay     = 16 * time.Second
	)
	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		resp, err := l.client.Chat(ctx, req)
		elapsed := time.Since(start).Round(time.Millisecond)
		logging.DevLog("provider call finished: err=%v (attempt %d/%d, duration=%s)", err, attempt, maxRetries, elapsed)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return llm.ChatResponse{}, context.Canceled
		}

		if pe, ok := llm.IsProviderError(err); ok {
			if !pe.Retryable {
				return llm.ChatResponse{}, err
			}
			if pe.RetryAfter != nil && *pe.RetryAfter > delay {
				delay = *pe.RetryAfter
			}
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}
		logging.UserLog("retrying provider call (attempt %d/%d) after %v", attempt+1, maxRetries, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return llm.ChatResponse{}, context.Canceled
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return llm.ChatResponse{}, lastErr
}
