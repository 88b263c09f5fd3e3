package state

import (
	"time"
)

// Message mirrors the OpenAI-compatible chat schema so that stored history
// can be reused verbatim in requests.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a function call request emitted by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is embedded inside ToolCall for OpenAI-compatible schemas.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Conversation is a named, append-only list of chat messages with
// persistence metadata. The turn loop is the sole writer; everything else
// reads through Messages which returns a copy.
type Conversation struct {
	key       string
	messages  []Message
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation returns an empty conversation under the given key.
func NewConversation(key string) *Conversation {
	return &Conversation{key: key}
}

// Key returns the identifier assigned to the conversation.
func (c *Conversation) Key() string {
	return c.key
}

// Messages exposes a copy of the history for serialization and requests.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the number of stored messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Append adds a new chat message to the history.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
	c.touch()
}

// Clear removes all history and reinstates the system prompt when given.
func (c *Conversation) Clear(systemPrompt string) {
	c.messages = c.messages[:0]
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{Role: "system", Content: systemPrompt})
	}
	c.touch()
}

// CreatedAt returns when the conversation was first persisted.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the conversation last changed.
func (c *Conversation) UpdatedAt() time.Time {
	return c.updatedAt
}

func (c *Conversation) touch() {
	now := time.Now()
	if c.createdAt.IsZero() {
		c.createdAt = now
	}
	c.updatedAt = now
}
