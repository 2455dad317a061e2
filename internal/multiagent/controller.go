// Package multiagent implements the Transfer Controller: the single
// source of truth for which agents may hand control to which others.
package multiagent

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// MaxTransferDepth bounds the number of transfers permitted within a
// single turn, guarding against unbounded A→B→A→B cycles.
const MaxTransferDepth = 8

// Controller tracks the agent hierarchy's allowed-transfer graph by name
// (never by pointer, so the graph can be cyclic without recursive
// serialization) and synthesizes each agent's transfer tool.
type Controller struct {
	mu      sync.RWMutex
	known   map[string]struct{}            // every registered agent name
	allowed map[string]map[string]struct{} // source -> set of permitted targets
}

// NewController builds an empty Controller.
func NewController() *Controller {
	return &Controller{
		known:   map[string]struct{}{},
		allowed: map[string]map[string]struct{}{},
	}
}

// Register records agent and its initially allowed transfer targets.
// Idempotent by name: re-registering the same name with the same targets
// is a no-op; registering a different agent under a name already in use
// (i.e. calling Register for a name whose allowed-set would change
// without going through AllowTransfer) returns a KindInvalidInput
// "duplicate agent registration" error.
func (c *Controller) Register(name string, allowedTargets []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newSet := map[string]struct{}{}
	for _, t := range allowedTargets {
		newSet[t] = struct{}{}
	}

	if _, exists := c.known[name]; exists {
		if sameSet(c.allowed[name], newSet) {
			return nil
		}
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("duplicate agent registration: %q", name))
	}
	c.known[name] = struct{}{}
	c.allowed[name] = newSet
	return nil
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// AllowTransfer adds a source->target edge. Both ends must already be
// registered.
func (c *Controller) AllowTransfer(source, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.known[source]; !ok {
		return errs.New(errs.KindUnknownResource, "unknown agent: "+source)
	}
	if _, ok := c.known[target]; !ok {
		return errs.New(errs.KindUnknownResource, "unknown agent: "+target)
	}
	if source == target {
		return errs.New(errs.KindInvalidInput, "reflexive transfer edges are forbidden: "+source)
	}
	c.allowed[source][target] = struct{}{}
	return nil
}

// Result is the outcome of a Transfer attempt.
type Result struct {
	Allowed bool
	Target  string
}

// Transfer succeeds iff target is in allowed_transfers[source]; otherwise
// it returns a Result with Allowed false together with a KindTransferDenied
// error. The denial is non-fatal: the caller can surface it as a normal
// turn event.
func (c *Controller) Transfer(source, target string) (Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.known[source]; !ok {
		return Result{}, errs.New(errs.KindUnknownResource, "unknown agent: "+source)
	}
	targets, ok := c.allowed[source]
	if !ok || !contains(targets, target) {
		return Result{Allowed: false, Target: target}, errs.New(errs.KindTransferDenied,
			fmt.Sprintf("agent %q may not transfer to %q", source, target))
	}
	return Result{Allowed: true, Target: target}, nil
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// AllowedTargets returns a snapshot of the targets currently permitted
// for source, sorted is left to the caller since schema construction
// wants deterministic but caller-controlled ordering.
func (c *Controller) AllowedTargets(source string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.allowed[source]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// ToolFor synthesizes the transfer_to_agent tool descriptor for source,
// with an input schema enumerating its currently allowed targets.
// Targets are sorted so the schema is deterministic. Handler is left nil:
// the per-turn engine intercepts calls to this tool by name, calls
// Transfer, and records the result as an AgentTransfer event, since this
// package doesn't own event emission.
func (c *Controller) ToolFor(source string) models.ToolDescriptor {
	targets := c.AllowedTargets(source)
	sort.Strings(targets)
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{
				"type": "string",
				"enum": targets,
			},
		},
		"required": []string{"agent_name"},
	}
	raw, _ := json.Marshal(schema)
	return models.ToolDescriptor{
		Name:        "transfer_to_agent",
		Description: "Transfers control of the conversation to another agent.",
		InputSchema: raw,
		Timeout:     5 * time.Second,
	}
}
