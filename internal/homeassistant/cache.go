// Package homeassistant implements the Home Assistant integration: a
// reconnecting WebSocket client, the read-heavy state cache it feeds, and
// the scored entity resolver built on top of the cache.
package homeassistant

import (
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Cache holds the current entity state snapshot and registry metadata.
// All mutation is serialized through mu; readers take the same lock only
// for the duration of a snapshot copy. This lock is always innermost:
// callers must never hold a session lock while blocked waiting on this
// one, only the reverse.
type Cache struct {
	mu sync.RWMutex

	states   map[string]models.HAEntity      // entity_id -> state
	byDomain map[string]map[string]struct{}  // domain -> set of entity_id
	registry map[string]models.HARegistryEntry // entity_id -> registry metadata
	devices  map[string]models.HADeviceEntry   // device_id -> device metadata
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{
		states:   map[string]models.HAEntity{},
		byDomain: map[string]map[string]struct{}{},
		registry: map[string]models.HARegistryEntry{},
		devices:  map[string]models.HADeviceEntry{},
	}
}

func domainOf(entityID string) string {
	if idx := strings.IndexByte(entityID, '.'); idx >= 0 {
		return entityID[:idx]
	}
	return ""
}

// ApplyStateChanged upserts newState, or removes the entity from the
// cache when newState is nil.
func (c *Cache) ApplyStateChanged(entityID string, newState *models.HAEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	domain := domainOf(entityID)
	if newState == nil {
		delete(c.states, entityID)
		if set, ok := c.byDomain[domain]; ok {
			delete(set, entityID)
			if len(set) == 0 {
				delete(c.byDomain, domain)
			}
		}
		return
	}

	c.states[entityID] = *newState
	set, ok := c.byDomain[domain]
	if !ok {
		set = map[string]struct{}{}
		c.byDomain[domain] = set
	}
	set[entityID] = struct{}{}
}

// ReplaceRegistry atomically swaps the entity-registry map.
func (c *Cache) ReplaceRegistry(entries map[string]models.HARegistryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry = entries
}

// ReplaceDevices atomically swaps the device-registry map.
func (c *Cache) ReplaceDevices(entries map[string]models.HADeviceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = entries
}

// GetState returns a copy of the cached state for entityID, with
// monotonic visibility: a reader never observes a state older than one
// already returned to a prior caller that happened before this call.
func (c *Cache) GetState(entityID string) (models.HAEntity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[entityID]
	return s, ok
}

// AllStates returns a snapshot copy of every cached entity state.
func (c *Cache) AllStates() []models.HAEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.HAEntity, 0, len(c.states))
	for _, s := range c.states {
		out = append(out, s)
	}
	return out
}

// Domain returns the entity ids present in domain, sorted ascending.
func (c *Cache) Domain(domain string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.byDomain[domain]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Registry returns a snapshot copy of the registry entry for entityID.
func (c *Cache) Registry(entityID string) (models.HARegistryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.registry[entityID]
	return r, ok
}

// Device returns a snapshot copy of the device entry for deviceID.
func (c *Cache) Device(deviceID string) (models.HADeviceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[deviceID]
	return d, ok
}

// candidates returns every entity id known either from live state or
// from the registry, deduplicated, for the resolver's sweep.
func (c *Cache) candidates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := map[string]struct{}{}
	for id := range c.states {
		seen[id] = struct{}{}
	}
	for id := range c.registry {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// snapshotFor assembles the fields the resolver scores against for one
// entity id, copying out of the cache under lock.
func (c *Cache) snapshotFor(entityID string) entitySnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := entitySnapshot{entityID: entityID, domain: domainOf(entityID)}
	if s, ok := c.states[entityID]; ok {
		snap.state = &s
	}
	if r, ok := c.registry[entityID]; ok {
		snap.registryName = r.FriendlyName
		snap.area = r.Area
		snap.deviceID = r.DeviceID
		if d, ok := c.devices[r.DeviceID]; ok {
			snap.deviceName = d.Name
			snap.manufacturer = d.Manufacturer
			snap.model = d.Model
			if snap.area == "" {
				snap.area = d.Area
			}
		}
	}
	if snap.state != nil {
		if fn, ok := snap.state.Attributes["friendly_name"].(string); ok {
			snap.friendlyName = fn
		}
		if dc, ok := snap.state.Attributes["device_class"].(string); ok {
			snap.deviceClass = dc
		}
	}
	if snap.friendlyName == "" {
		snap.friendlyName = snap.registryName
	}
	return snap
}

type entitySnapshot struct {
	entityID     string
	domain       string
	friendlyName string
	registryName string
	area         string
	deviceID     string
	deviceName   string
	manufacturer string
	model        string
	deviceClass  string
	state        *models.HAEntity
}
