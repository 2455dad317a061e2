package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/multiagent"
	"github.com/haasonsaas/orchestrator/internal/tools"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// maxEngineRounds bounds the number of provider round-trips within a
// single turn, independent of the transfer-depth counter — it guards
// against a misbehaving model that keeps requesting tools without ever
// producing a final response.
const maxEngineRounds = 50

// Engine drives one agent hierarchy through a single turn: it calls the
// provider, dispatches tool calls through the registry, and honors
// transfer requests through the controller, emitting the normalized
// Event stream the session runner delivers to clients.
type Engine struct {
	Hierarchy  *Hierarchy
	Controller *multiagent.Controller
	Tools      *tools.Registry
	Provider   LLMProvider
}

// Input describes one turn's starting conditions.
type Input struct {
	SessionID  string
	StartAgent string
	History    []models.Turn
	UserText   string
}

// Run executes one turn to completion and returns the normalized event
// sequence, the final assistant text, and the agent left active at turn
// end (which becomes the starting agent for the session's next turn).
func (e *Engine) Run(ctx context.Context, in Input) ([]models.Event, string, string, error) {
	var events []models.Event
	activeAgent := in.StartAgent
	if activeAgent == "" {
		activeAgent = e.Hierarchy.Root()
	}

	transcript := toProviderMessages(in.History, in.UserText)
	transferDepth := 0

	for round := 0; round < maxEngineRounds; round++ {
		select {
		case <-ctx.Done():
			return events, "", activeAgent, ctx.Err()
		default:
		}

		def, ok := e.Hierarchy.Get(activeAgent)
		if !ok {
			return events, "", activeAgent, errs.New(errs.KindUnknownResource, "unknown agent: "+activeAgent)
		}

		toolList := append([]models.ToolDescriptor{}, def.Tools...)
		toolList = append(toolList, e.Controller.ToolFor(activeAgent))

		req := &CompletionRequest{
			Model:    def.Model,
			System:   def.Instruction,
			Messages: transcript,
			Tools:    toolList,
		}

		chunks, err := e.Provider.Complete(ctx, req)
		if err != nil {
			return events, "", activeAgent, err
		}

		var text string
		var pendingCalls []ToolCall
		var roundErr error
		for chunk := range chunks {
			switch {
			case chunk.Error != nil:
				roundErr = chunk.Error
			case chunk.ToolCall != nil:
				pendingCalls = append(pendingCalls, *chunk.ToolCall)
			case chunk.Text != "":
				text += chunk.Text
			}
		}
		if roundErr != nil {
			return events, "", activeAgent, roundErr
		}

		if len(pendingCalls) == 0 {
			events = append(events, models.Event{
				Type:      models.EventModelResponse,
				Timestamp: now(),
				Summary:   "model response",
				Text:      text,
				IsFinal:   true,
				AgentName: activeAgent,
			})
			return events, text, activeAgent, nil
		}

		if text != "" {
			events = append(events, models.Event{
				Type:      models.EventModelResponse,
				Timestamp: now(),
				Summary:   "model response",
				Text:      text,
				IsFinal:   false,
				AgentName: activeAgent,
			})
		}

		assistantMsg := CompletionMessage{Role: "assistant", Content: text, ToolCalls: pendingCalls}
		transcript = append(transcript, assistantMsg)

		var toolResults []ToolResult
		for _, call := range pendingCalls {
			if call.Name == "transfer_to_agent" {
				transferDepth++
				if transferDepth > multiagent.MaxTransferDepth {
					events = append(events, models.Event{
						Type:      models.EventOther,
						Timestamp: now(),
						Summary:   "transfer depth exceeded",
						Details:   "terminated turn after exceeding the per-turn transfer limit",
					})
					return events, "", activeAgent, errs.New(errs.KindInternal, "transfer depth exceeded")
				}

				var params struct {
					AgentName string `json:"agent_name"`
				}
				_ = json.Unmarshal(call.Input, &params)

				result, transferErr := e.Controller.Transfer(activeAgent, params.AgentName)
				status := models.TransferDenied
				if transferErr == nil {
					status = models.TransferAllowed
				}
				events = append(events, models.Event{
					Type:      models.EventAgentTransfer,
					Timestamp: now(),
					Summary:   "agent transfer",
					FromAgent: activeAgent,
					ToAgent:   params.AgentName,
					Status:    status,
				})
				if transferErr == nil && result.Allowed {
					activeAgent = result.Target
					toolResults = append(toolResults, ToolResult{ToolCallID: call.ID, Content: "transferred"})
				} else {
					toolResults = append(toolResults, ToolResult{ToolCallID: call.ID, Content: "transfer denied", IsError: true})
				}
				continue
			}

			output, callErr := e.Tools.Call(ctx, models.ToolContext{SessionID: in.SessionID, AgentName: activeAgent}, call.Name, call.Input)
			evt := models.Event{
				Type:      models.EventToolCall,
				Timestamp: now(),
				Summary:   "tool call: " + call.Name,
				ToolName:  call.Name,
				ToolInput: call.Input,
			}
			if callErr != nil {
				kind := errs.Classify(callErr)
				evt.ToolError = &models.ToolCallError{Kind: string(kind), Message: callErr.Error(), Retryable: kind.IsRetryable()}
				toolResults = append(toolResults, ToolResult{ToolCallID: call.ID, Content: callErr.Error(), IsError: true})
			} else {
				evt.ToolOutput = output
				toolResults = append(toolResults, ToolResult{ToolCallID: call.ID, Content: string(output)})
			}
			events = append(events, evt)
		}

		transcript = append(transcript, CompletionMessage{Role: "tool", ToolResults: toolResults})
	}

	return events, "", activeAgent, errs.New(errs.KindInternal, "turn exceeded maximum engine rounds")
}

func toProviderMessages(history []models.Turn, userText string) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history)+1)
	for _, t := range history {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "assistant"
		}
		out = append(out, CompletionMessage{Role: role, Content: t.Content})
	}
	out = append(out, CompletionMessage{Role: "user", Content: userText})
	return out
}

func now() time.Time { return time.Now() }
