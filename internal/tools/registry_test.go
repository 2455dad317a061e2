package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

func echoHandler(_ models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
	return input, nil
}

func TestRegisterDuplicateName(t *testing.T) {
	r := NewRegistry(0)
	desc := models.ToolDescriptor{Name: "echo", Handler: echoHandler}
	if err := r.Register(desc); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(desc); err == nil {
		t.Fatal("expected error registering duplicate tool name")
	}
}

func TestRegisterInvalidSchema(t *testing.T) {
	r := NewRegistry(0)
	desc := models.ToolDescriptor{
		Name:        "broken",
		Handler:     echoHandler,
		InputSchema: json.RawMessage(`{not json`),
	}
	if err := r.Register(desc); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestCallValidatesInputSchema(t *testing.T) {
	r := NewRegistry(0)
	desc := models.ToolDescriptor{
		Name:    "greet",
		Handler: echoHandler,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"name": {"type": "string"}},
			"required": ["name"]
		}`),
	}
	if err := r.Register(desc); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := r.Call(context.Background(), models.ToolContext{}, "greet", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected schema validation error for missing required field")
	}
	if errs.Classify(err) != errs.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", errs.Classify(err))
	}

	out, err := r.Call(context.Background(), models.ToolContext{}, "greet", json.RawMessage(`{"name":"ada"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"name":"ada"}` {
		t.Fatalf("unexpected echo output: %s", out)
	}
}

func TestCallUnknownTool(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Call(context.Background(), models.ToolContext{}, "nope", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	} else if errs.Classify(err) != errs.KindUnknownResource {
		t.Fatalf("expected KindUnknownResource, got %v", errs.Classify(err))
	}
}

func TestCallTimeout(t *testing.T) {
	r := NewRegistry(0)
	desc := models.ToolDescriptor{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Handler: func(_ models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			time.Sleep(100 * time.Millisecond)
			return input, nil
		},
	}
	if err := r.Register(desc); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := r.Call(context.Background(), models.ToolContext{}, "slow", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errs.Classify(err) != errs.KindToolTimeout {
		t.Fatalf("expected KindToolTimeout, got %v", errs.Classify(err))
	}
}

func TestCallRecoversPanic(t *testing.T) {
	r := NewRegistry(0)
	desc := models.ToolDescriptor{
		Name: "panics",
		Handler: func(_ models.ToolContext, _ json.RawMessage) (json.RawMessage, error) {
			panic("boom")
		},
	}
	if err := r.Register(desc); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Call(context.Background(), models.ToolContext{}, "panics", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestSelectDeduplicatesAcrossCategories(t *testing.T) {
	r := NewRegistry(0)
	shared := models.ToolDescriptor{Name: "shared", Category: CategoryUtility, Handler: echoHandler}
	other := models.ToolDescriptor{Name: "other", Category: CategoryUtility, Handler: echoHandler}
	if err := r.Register(shared); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(other); err != nil {
		t.Fatal(err)
	}
	selected := r.Select(CategoryUtility, CategoryUtility)
	if len(selected) != 2 {
		t.Fatalf("expected 2 deduplicated tools, got %d", len(selected))
	}
}
