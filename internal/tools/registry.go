// Package tools implements the Tool Registry and named toolsets (spec
// §4.2): a mapping from tool name to a callable descriptor, grouped into
// toolsets selected per agent at construction.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Category names the fixed toolset categories agents can be granted.
const (
	CategoryFilesystem    = "filesystem"
	CategoryWebSearch     = "web-search"
	CategoryCalendar      = "calendar"
	CategoryHomeAssistant = "home-assistant"
	CategoryShell         = "shell"
	CategoryTodo          = "todo"
	CategoryMemory        = "memory"
	CategoryCrawl         = "crawl"
	CategoryUtility       = "utility"
	CategoryScout         = "scout"
	CategoryAxel          = "axel"
)

const fallbackTimeout = 60 * time.Second

// Registry owns the canonical set of tools and the named toolsets built
// from them. It is safe for concurrent use; registration is expected to
// happen once at startup, but the mutex also guards lookups during tests
// that register incrementally.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]models.ToolDescriptor
	schemas        map[string]*jsonschema.Schema
	toolsets       map[string][]string // category -> tool names, in registration order
	defaultTimeout time.Duration
}

// NewRegistry builds an empty Registry. A timeout <= 0 falls back to
// fallbackTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	return &Registry{
		tools:          map[string]models.ToolDescriptor{},
		schemas:        map[string]*jsonschema.Schema{},
		toolsets:       map[string][]string{},
		defaultTimeout: timeout,
	}
}

// Register adds a tool descriptor, compiling its JSON schema up front so
// that InvalidToolInput failures never reach the handler. Returns an
// error if the name is already registered (names are globally unique
// within a registry) or the schema doesn't compile.
func (r *Registry) Register(desc models.ToolDescriptor) error {
	if desc.Name == "" {
		return errs.New(errs.KindInvalidInput, "tool name is required")
	}
	if desc.Handler == nil {
		return errs.New(errs.KindInvalidInput, "tool handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("tool %q already registered", desc.Name))
	}

	schema := desc.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	compiled, err := compileSchema(desc.Name, schema)
	if err != nil {
		return errs.Wrap(errs.KindInvalidInput, err, fmt.Sprintf("tool %q: invalid input schema", desc.Name))
	}

	if desc.Timeout <= 0 {
		desc.Timeout = r.defaultTimeout
	}
	desc.InputSchema = schema

	r.tools[desc.Name] = desc
	r.schemas[desc.Name] = compiled
	if desc.Category != "" {
		r.toolsets[desc.Category] = append(r.toolsets[desc.Category], desc.Name)
	}
	return nil
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	resourceURL := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceURL)
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Toolset returns the tool descriptors registered under category, in
// registration order.
func (r *Registry) Toolset(category string) []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.toolsets[category]
	out := make([]models.ToolDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

// Select builds the ordered tool list for an agent configured with the
// union of the named toolset categories, deduplicating by tool name.
func (r *Registry) Select(categories ...string) []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var out []models.ToolDescriptor
	for _, cat := range categories {
		for _, name := range r.toolsets[cat] {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, r.tools[name])
		}
	}
	return out
}

// All returns every registered tool descriptor, for the /api/tools
// surface.
func (r *Registry) All() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Call validates input against the tool's declared schema, then invokes
// its handler under the tool's configured timeout. Schema-invalid calls
// never reach the handler.
func (r *Registry) Call(ctx context.Context, toolCtx models.ToolContext, name string, input json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	desc, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindUnknownResource, fmt.Sprintf("tool %q not found", name))
	}

	var decoded any
	if len(input) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(input, &decoded); err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, err, "tool input is not valid JSON")
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, err, fmt.Sprintf("tool %q: input schema validation failed", name))
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: errs.New(errs.KindInternal, fmt.Sprintf("tool %q panicked: %v", name, rec))}
			}
		}()
		out, err := desc.Handler(toolCtx, input)
		done <- result{out: out, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, errs.New(errs.KindToolTimeout, fmt.Sprintf("tool %q timed out after %s", name, timeout))
	case res := <-done:
		return res.out, res.err
	}
}
