// Package agent implements the per-turn engine: it drives one agent
// (instruction, model, tool list) against an LLMProvider to completion,
// executing tool calls through the registry and surfacing transfer
// requests to the caller as raw engine events.
package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

// LLMProvider is the runtime's boundary to a model backend. Only an
// Anthropic-backed implementation ships; other providers are a contract
// only (spec's out-of-scope "third-party model-provider SDKs").
type LLMProvider interface {
	// Complete sends req and returns a channel of streamed chunks, closed
	// when the response (or an error) completes.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
}

// CompletionRequest is one model call: system instruction, transcript,
// and the tool set currently available to the calling agent.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []models.ToolDescriptor
	MaxTokens int
}

// CompletionMessage is one turn of the transcript handed to the
// provider, in its role-tagged form.
type CompletionMessage struct {
	Role        string // "user", "assistant", or "tool"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a complete tool invocation request surfaced by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult carries a tool's output back into the transcript for the
// next model call.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// CompletionChunk is one increment of a streamed response: partial text,
// a completed tool call, or a terminal Done/Error signal.
type CompletionChunk struct {
	Text         string
	ToolCall     *ToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}
