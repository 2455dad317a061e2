// Package models holds the wire- and store-level data types shared across
// the orchestration runtime: agents, sessions, turns, events, and the
// Home Assistant entity/registry shapes.
package models

import (
	"encoding/json"
	"time"
)

// Agent describes one node of the agent hierarchy. It is immutable after
// construction; callers that need a modified agent build a new value.
type Agent struct {
	Name             string           `json:"name"`
	Model            string           `json:"model"`
	Instruction      string           `json:"instruction"`
	Tools            []ToolDescriptor `json:"tools"`
	SubAgents        []string         `json:"sub_agents"`
	AllowedTransfers []string         `json:"allowed_transfers"`
	ShellMode        ShellMode        `json:"shell_mode,omitempty"`
}

// ShellMode controls the shell tool's command allow-listing for an agent.
type ShellMode string

const (
	ShellModeStrict     ShellMode = "strict"
	ShellModePermissive ShellMode = "permissive"
)

// ToolDescriptor is the registry's canonical view of one tool: a name, a
// JSON-schema for its input, and a reference to its handler. Handlers are
// not serialized; Handler is nil on any decoded-from-JSON copy.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Handler     ToolHandler      `json:"-"`
	// Category groups tools into named toolsets (filesystem, web-search,
	// calendar, home-assistant, shell, todo, memory, crawl, utility,
	// scout, axel).
	Category string `json:"category,omitempty"`
	// Timeout overrides the registry-wide default per-tool timeout.
	Timeout time.Duration `json:"-"`
}

// ToolHandler executes a tool call. Implementations must be re-entrant and
// must not block past the enclosing timeout. ToolContext carries no
// cancellation signal: Registry.Call stops waiting once the tool's timeout
// elapses, but does not stop the handler.
type ToolHandler func(ctx ToolContext, input json.RawMessage) (json.RawMessage, error)

// ToolContext carries the per-call context a handler may need: the
// session id the call belongs to, and a reference to the agent invoking
// it. It is intentionally small — handlers reach external systems through
// their own captured dependencies, not through this struct.
type ToolContext struct {
	SessionID string
	AgentName string
}

// Session is a single conversation's container: identity, ownership, and
// metadata. The transcript and event buffer are owned by the Session
// Runner, not stored here.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AppName   string    `json:"app_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `json:"name,omitempty"`
	// ActiveAgent is the agent left active at the end of the previous
	// turn; new turns start here rather than always at the root agent.
	ActiveAgent string `json:"active_agent"`
}

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session's transcript.
type Turn struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType distinguishes the variants of the Event tagged union.
type EventType string

const (
	EventToolCall       EventType = "tool_call"
	EventAgentTransfer  EventType = "agent_transfer"
	EventPlanner        EventType = "planner"
	EventModelResponse  EventType = "model_response"
	EventOther          EventType = "other"
)

// TransferStatus records the outcome of an AgentTransfer event.
type TransferStatus string

const (
	TransferAllowed TransferStatus = "allowed"
	TransferDenied  TransferStatus = "denied"
)

// Event is the envelope delivered to clients and stored in the per-session
// event buffer. Exactly one of the typed payload fields is populated,
// selected by Type.
type Event struct {
	Type      EventType `json:"type"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`

	// ToolCall fields.
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"input,omitempty"`
	ToolOutput json.RawMessage `json:"output,omitempty"`
	ToolError  *ToolCallError  `json:"error,omitempty"`

	// AgentTransfer fields.
	FromAgent string         `json:"from_agent,omitempty"`
	ToAgent   string         `json:"to_agent,omitempty"`
	Status    TransferStatus `json:"status,omitempty"`

	// Planner fields.
	Plan     string `json:"plan,omitempty"`
	PlanStep string `json:"plan_step,omitempty"`

	// ModelResponse fields.
	Text      string `json:"text,omitempty"`
	IsFinal   bool   `json:"is_final,omitempty"`
	AgentName string `json:"agent_name,omitempty"`

	// Truncated records whether Text/Details were shortened for payload
	// bounding; TruncatedFrom holds the pre-truncation length.
	Truncated     bool `json:"truncated,omitempty"`
	TruncatedFrom int  `json:"truncated_from,omitempty"`
}

// ToolCallError is the structured error attached to a failed ToolCall
// event, carrying an internal/errs.Error's Kind and message plus the
// kind's retryability for transport.
type ToolCallError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// HAEntity is one Home Assistant entity's cached state.
type HAEntity struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]any         `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
}

// HARegistryEntry is per-entity registry metadata (not state).
type HARegistryEntry struct {
	EntityID       string   `json:"entity_id"`
	FriendlyName   string   `json:"friendly_name,omitempty"`
	Area           string   `json:"area,omitempty"`
	DeviceID       string   `json:"device_id,omitempty"`
	EntityCategory string   `json:"entity_category,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	Platform       string   `json:"platform,omitempty"`
}

// HADeviceEntry is per-device registry metadata.
type HADeviceEntry struct {
	ID           string `json:"id"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Name         string `json:"name,omitempty"`
	ViaDevice    string `json:"via_device,omitempty"`
	Area         string `json:"area,omitempty"`
}

// HASubscription tracks one active HA event subscription.
type HASubscription struct {
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
}

// SearchResult is one scored hit from the entity resolver.
type SearchResult struct {
	EntityID     string  `json:"entity_id"`
	FriendlyName string  `json:"friendly_name,omitempty"`
	Domain       string  `json:"domain"`
	Score        int     `json:"score"`
	State        *string `json:"state,omitempty"`
}
