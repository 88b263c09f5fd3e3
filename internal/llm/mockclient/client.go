package mockclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pico/internal/llm"
	"pico/internal/state"
)

// Client is a deterministic llm.Client used for tests and CI.
type Client struct {
	prefix string
}

// New returns a mock client that echoes the last user message.
func New() *Client {
	return &Client{prefix: "MOCK"}
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	response := state.Message{
		Role: "assistant",
	}

	if n := len(req.Messages); n > 0 {
		last := strings.TrimSpace(req.Messages[n-1].Content)
		if last == "" {
			response.Content = fmt.Sprintf("%s RESPONSE", c.prefix)
		} else {
			response.Content = fmt.Sprintf("%s RESPONSE: %s", c.prefix, last)
		}
	} else {
		response.Content = fmt.Sprintf("%s RESPONSE", c.prefix)
	}

	return llm.ChatResponse{
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				Message:      response,
				FinishReason: "stop",
			},
		},
		Usage: &llm.Usage{
			PromptTokens:     42,
			CompletionTokens: 7,
			TotalTokens:      49,
		},
	}, nil
}

// Scripted replays a fixed sequence of responses, one per Chat call. It
// records every request it sees so tests can assert on conversation shape.
type Scripted struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
	errs      []error
	Requests  []llm.ChatRequest
}

// NewScripted builds a scripted client from ordered steps. A nil error with
// a response plays that response; a non-nil error fails that call.
func NewScripted() *Scripted {
	return &Scripted{}
}

// Enqueue appends a successful assistant turn to the script.
func (s *Scripted) Enqueue(msg state.Message) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, llm.ChatResponse{
		Choices: []llm.ChatChoice{{Message: msg, FinishReason: finishReason(msg)}},
	})
	s.errs = append(s.errs, nil)
	return s
}

// EnqueueError appends a failing call to the script.
func (s *Scripted) EnqueueError(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, llm.ChatResponse{})
	s.errs = append(s.errs, err)
	return s
}

// Chat satisfies the llm.Client interface.
func (s *Scripted) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	idx := len(s.Requests) - 1
	if idx >= len(s.responses) {
		return llm.ChatResponse{}, fmt.Errorf("scripted client exhausted after %d calls", len(s.responses))
	}
	if err := s.errs[idx]; err != nil {
		return llm.ChatResponse{}, err
	}
	return s.responses[idx], nil
}

// Calls reports how many Chat invocations the script has served.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

func finishReason(msg state.Message) string {
	if len(msg.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}
