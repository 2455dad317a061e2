package agent

import (
	"fmt"
	"sync"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Hierarchy is the immutable-after-construction set of agents making up
// the runtime's agent tree, keyed by name.
type Hierarchy struct {
	mu     sync.RWMutex
	agents map[string]models.Agent
	root   string
}

// NewHierarchy builds an empty Hierarchy rooted at rootName. Agents are
// registered afterward via Add, leaves-first.
func NewHierarchy(rootName string) *Hierarchy {
	return &Hierarchy{agents: map[string]models.Agent{}, root: rootName}
}

// Add registers agent, enforcing the global name-uniqueness invariant
// and that the agent's own tool names are unique. It does not check
// allowed_transfers targets; Validate does that once every agent has
// been added.
func (h *Hierarchy) Add(a models.Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.agents[a.Name]; exists {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("duplicate agent name: %q", a.Name))
	}
	seenTool := map[string]struct{}{}
	for _, t := range a.Tools {
		if _, dup := seenTool[t.Name]; dup {
			return errs.New(errs.KindInvalidInput, fmt.Sprintf("agent %q: duplicate tool name %q", a.Name, t.Name))
		}
		seenTool[t.Name] = struct{}{}
	}
	h.agents[a.Name] = a
	return nil
}

// Get returns the agent registered under name.
func (h *Hierarchy) Get(name string) (models.Agent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.agents[name]
	return a, ok
}

// Root returns the configured root agent's name.
func (h *Hierarchy) Root() string { return h.root }

// Validate checks that every agent's allowed_transfers names a known
// agent. Call this once all agents have been added.
func (h *Hierarchy) Validate() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for name, a := range h.agents {
		for _, target := range a.AllowedTransfers {
			if _, ok := h.agents[target]; !ok {
				return errs.New(errs.KindInvalidInput,
					fmt.Sprintf("agent %q allows transfer to unknown agent %q", name, target))
			}
		}
	}
	if _, ok := h.agents[h.root]; !ok {
		return errs.New(errs.KindInvalidInput, "root agent "+h.root+" is not registered")
	}
	return nil
}

// Names returns every registered agent name.
func (h *Hierarchy) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.agents))
	for name := range h.agents {
		out = append(out, name)
	}
	return out
}
