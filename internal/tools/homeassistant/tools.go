// Package homeassistant adapts the HA state cache, entity resolver, and
// WebSocket client onto the tool registry's ToolDescriptor shape, so
// agents configured with the "home-assistant" toolset can read state,
// search for entities, and call services.
package homeassistant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/homeassistant"
	"github.com/haasonsaas/orchestrator/internal/tools"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

const (
	registryTimeout = 30 * time.Second
	callTimeout     = 10 * time.Second
)

// Register adds the home-assistant toolset to reg, backed by cache for
// reads and client for the HA-bound call_service write.
func Register(reg *tools.Registry, cache *homeassistant.Cache, resolver *homeassistant.Resolver, client *homeassistant.Client) error {
	for _, desc := range []models.ToolDescriptor{
		getStateDescriptor(cache),
		searchEntitiesDescriptor(resolver),
		listEntitiesByDomainDescriptor(cache),
		callServiceDescriptor(cache, client),
	} {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func getStateDescriptor(cache *homeassistant.Cache) models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "get_state",
		Description: "Returns the current state and attributes for a single Home Assistant entity_id.",
		Category:    tools.CategoryHomeAssistant,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"entity_id": {"type": "string", "description": "Canonical entity id, e.g. light.basement_main."}
			},
			"required": ["entity_id"]
		}`),
		Timeout: registryTimeout,
		Handler: func(_ models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			var params struct {
				EntityID string `json:"entity_id"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return nil, errs.Wrap(errs.KindInvalidInput, err, "invalid input")
			}
			entity, ok := cache.GetState(params.EntityID)
			if !ok {
				return nil, errs.New(errs.KindUnknownResource, "unknown entity: "+params.EntityID)
			}
			return json.Marshal(entity)
		},
	}
}

func searchEntitiesDescriptor(resolver *homeassistant.Resolver) models.ToolDescriptor {
	return models.ToolDescriptor{
		Name: "search_entities",
		Description: "Scored multi-field search over known entities, used to translate a fuzzy natural-language " +
			"reference (\"the basement light\") into a canonical entity_id before acting on it.",
		Category: tools.CategoryHomeAssistant,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Free-text entity description; may be empty when domain is set."},
				"domain": {"type": "string", "description": "Restrict results to one HA domain, e.g. light, switch, sensor."}
			}
		}`),
		Timeout: registryTimeout,
		Handler: func(_ models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			var params struct {
				Query  string `json:"query"`
				Domain string `json:"domain"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &params); err != nil {
					return nil, errs.Wrap(errs.KindInvalidInput, err, "invalid input")
				}
			}
			results := resolver.Search(params.Query, params.Domain)
			return json.Marshal(map[string]any{"results": results})
		},
	}
}

func listEntitiesByDomainDescriptor(cache *homeassistant.Cache) models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "list_entities_by_domain",
		Description: "Lists every known entity_id in a given HA domain (e.g. light, switch, climate).",
		Category:    tools.CategoryHomeAssistant,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"domain": {"type": "string"}
			},
			"required": ["domain"]
		}`),
		Timeout: registryTimeout,
		Handler: func(_ models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			var params struct {
				Domain string `json:"domain"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return nil, errs.Wrap(errs.KindInvalidInput, err, "invalid input")
			}
			return json.Marshal(map[string]any{"entity_ids": cache.Domain(params.Domain)})
		},
	}
}

func callServiceDescriptor(cache *homeassistant.Cache, client *homeassistant.Client) models.ToolDescriptor {
	return models.ToolDescriptor{
		Name: "call_service",
		Description: "Calls a Home Assistant service (e.g. light.turn_on) against a target entity. Refuses " +
			"entity_id values that have not been resolved to a canonical id by search_entities or get_state.",
		Category: tools.CategoryHomeAssistant,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"domain": {"type": "string"},
				"service": {"type": "string"},
				"entity_id": {"type": "string"},
				"data": {"type": "object"}
			},
			"required": ["domain", "service", "entity_id"]
		}`),
		Timeout: callTimeout,
		Handler: func(ctx models.ToolContext, input json.RawMessage) (json.RawMessage, error) {
			var params struct {
				Domain   string         `json:"domain"`
				Service  string         `json:"service"`
				EntityID string         `json:"entity_id"`
				Data     map[string]any `json:"data"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return nil, errs.Wrap(errs.KindInvalidInput, err, "invalid input")
			}
			if params.EntityID == "" {
				return nil, errs.New(errs.KindInvalidInput, "entity_id is required and must be a canonical id")
			}
			if _, ok := cache.GetState(params.EntityID); !ok {
				if _, ok := cache.Registry(params.EntityID); !ok {
					return nil, errs.New(errs.KindUnknownResource,
						"unknown entity: "+params.EntityID+" (resolve it with search_entities first)")
				}
			}
			serviceData := params.Data
			if serviceData == nil {
				serviceData = map[string]any{}
			}
			target := map[string]any{"entity_id": params.EntityID}
			callCtx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			if err := client.CallService(callCtx, params.Domain, params.Service, serviceData, target); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"status": "ok"})
		},
	}
}
