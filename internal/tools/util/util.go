// Package util provides small, dependency-free tools grouped under the
// "utility" toolset: clock and identifier helpers agents reach for
// constantly and that need no external collaborator.
package util

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/tools"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Register adds the utility toolset to reg.
func Register(reg *tools.Registry) error {
	for _, desc := range []models.ToolDescriptor{
		currentTimeDescriptor(),
		newUUIDDescriptor(),
	} {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func currentTimeDescriptor() models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "get_current_time",
		Description: "Returns the current time, optionally in a named IANA timezone.",
		Category:    tools.CategoryUtility,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"timezone": {"type": "string", "description": "IANA timezone name, e.g. America/New_York. Defaults to UTC."}
			}
		}`),
		Timeout: 5 * time.Second,
		Handler: func(_ models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			var params struct {
				Timezone string `json:"timezone"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &params); err != nil {
					return nil, errs.Wrap(errs.KindInvalidInput, err, "invalid input")
				}
			}

			loc := time.UTC
			if params.Timezone != "" {
				l, err := time.LoadLocation(params.Timezone)
				if err != nil {
					return nil, errs.Wrap(errs.KindInvalidInput, err, "unknown timezone "+params.Timezone)
				}
				loc = l
			}

			now := time.Now().In(loc)
			return json.Marshal(map[string]string{
				"iso8601":  now.Format(time.RFC3339),
				"timezone": loc.String(),
			})
		},
	}
}

func newUUIDDescriptor() models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "generate_uuid",
		Description: "Generates a random v4 UUID.",
		Category:    tools.CategoryUtility,
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Timeout:     5 * time.Second,
		Handler: func(_ models.ToolContext, _ json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(map[string]string{"uuid": uuid.NewString()})
		},
	}
}
