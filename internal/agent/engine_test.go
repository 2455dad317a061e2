package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/orchestrator/internal/multiagent"
	"github.com/haasonsaas/orchestrator/internal/tools"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// scriptedProvider replays one response per call to Complete, in order,
// so tests can script multi-round tool-call conversations.
type scriptedProvider struct {
	responses [][]*CompletionChunk
	call      int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, _ *CompletionRequest) (<-chan *CompletionChunk, error) {
	idx := p.call
	p.call++
	ch := make(chan *CompletionChunk, len(p.responses[idx]))
	for _, c := range p.responses[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func buildRegistryWithTimeTool(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(5 * time.Second)
	err := reg.Register(models.ToolDescriptor{
		Name:        "get_current_time",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ models.ToolContext, _ json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(map[string]string{"time": "2026-07-31T00:00:00Z"})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestEngineTurnWithToolCall(t *testing.T) {
	hierarchy := NewHierarchy("main")
	if err := hierarchy.Add(models.Agent{Name: "main", Model: "claude-sonnet-4-5"}); err != nil {
		t.Fatal(err)
	}
	if err := hierarchy.Validate(); err != nil {
		t.Fatal(err)
	}

	controller := multiagent.NewController()
	if err := controller.Register("main", nil); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{
		responses: [][]*CompletionChunk{
			{
				{ToolCall: &ToolCall{ID: "call-1", Name: "get_current_time", Input: json.RawMessage(`{}`)}},
				{Done: true},
			},
			{
				{Text: "It is currently 2026-07-31T00:00:00Z."},
				{Done: true},
			},
		},
	}

	engine := &Engine{Hierarchy: hierarchy, Controller: controller, Tools: buildRegistryWithTimeTool(t), Provider: provider}

	events, finalText, activeAgent, err := engine.Run(context.Background(), Input{
		SessionID:  "S1",
		StartAgent: "main",
		UserText:   "what time is it",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activeAgent != "main" {
		t.Fatalf("expected active agent unchanged, got %s", activeAgent)
	}
	if finalText == "" {
		t.Fatal("expected non-empty final text")
	}

	var toolCallEvent, finalEvent *models.Event
	for i := range events {
		switch events[i].Type {
		case models.EventToolCall:
			toolCallEvent = &events[i]
		case models.EventModelResponse:
			if events[i].IsFinal {
				finalEvent = &events[i]
			}
		}
	}
	if toolCallEvent == nil {
		t.Fatal("expected a ToolCall event")
	}
	if toolCallEvent.ToolName != "get_current_time" {
		t.Fatalf("unexpected tool name %q", toolCallEvent.ToolName)
	}
	if finalEvent == nil {
		t.Fatal("expected exactly one final ModelResponse event")
	}
}

func TestEngineTransferDenied(t *testing.T) {
	hierarchy := NewHierarchy("scout")
	for _, name := range []string{"scout", "beto", "axel"} {
		if err := hierarchy.Add(models.Agent{Name: name, Model: "claude-sonnet-4-5"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := hierarchy.Validate(); err != nil {
		t.Fatal(err)
	}

	controller := multiagent.NewController()
	if err := controller.Register("scout", []string{"beto"}); err != nil {
		t.Fatal(err)
	}
	if err := controller.Register("beto", nil); err != nil {
		t.Fatal(err)
	}
	if err := controller.Register("axel", nil); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{
		responses: [][]*CompletionChunk{
			{
				{ToolCall: &ToolCall{ID: "call-1", Name: "transfer_to_agent", Input: json.RawMessage(`{"agent_name":"axel"}`)}},
				{Done: true},
			},
			{
				{Text: "I can't transfer there, let me help directly."},
				{Done: true},
			},
		},
	}

	engine := &Engine{Hierarchy: hierarchy, Controller: controller, Tools: tools.NewRegistry(5 * time.Second), Provider: provider}

	events, _, activeAgent, err := engine.Run(context.Background(), Input{
		SessionID:  "S1",
		StartAgent: "scout",
		UserText:   "hand me off to axel",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activeAgent != "scout" {
		t.Fatalf("expected active agent to remain scout after denial, got %s", activeAgent)
	}

	var transferEvent *models.Event
	for i := range events {
		if events[i].Type == models.EventAgentTransfer {
			transferEvent = &events[i]
		}
	}
	if transferEvent == nil {
		t.Fatal("expected an AgentTransfer event")
	}
	if transferEvent.Status != models.TransferDenied {
		t.Fatalf("expected denied status, got %s", transferEvent.Status)
	}
	if transferEvent.FromAgent != "scout" || transferEvent.ToAgent != "axel" {
		t.Fatalf("unexpected transfer event fields: %+v", transferEvent)
	}
}
