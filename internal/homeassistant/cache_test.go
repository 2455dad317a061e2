package homeassistant

import (
	"testing"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

func TestApplyStateChangedUpsertAndRemove(t *testing.T) {
	c := NewCache()
	c.ApplyStateChanged("light.kitchen", &models.HAEntity{EntityID: "light.kitchen", State: "on"})

	got, ok := c.GetState("light.kitchen")
	if !ok || got.State != "on" {
		t.Fatalf("expected cached state on, got %+v ok=%v", got, ok)
	}
	domainIDs := c.Domain("light")
	if len(domainIDs) != 1 || domainIDs[0] != "light.kitchen" {
		t.Fatalf("expected light.kitchen in domain index, got %v", domainIDs)
	}

	c.ApplyStateChanged("light.kitchen", nil)
	if _, ok := c.GetState("light.kitchen"); ok {
		t.Fatal("expected state removed after null new_state")
	}
	if domainIDs := c.Domain("light"); len(domainIDs) != 0 {
		t.Fatalf("expected empty domain index after removal, got %v", domainIDs)
	}
}

func TestReplaceRegistryIsAtomic(t *testing.T) {
	c := NewCache()
	c.ReplaceRegistry(map[string]models.HARegistryEntry{
		"light.a": {EntityID: "light.a"},
	})
	if _, ok := c.Registry("light.a"); !ok {
		t.Fatal("expected registry entry present")
	}
	c.ReplaceRegistry(map[string]models.HARegistryEntry{
		"light.b": {EntityID: "light.b"},
	})
	if _, ok := c.Registry("light.a"); ok {
		t.Fatal("expected prior registry entry gone after replace")
	}
	if _, ok := c.Registry("light.b"); !ok {
		t.Fatal("expected new registry entry present")
	}
}
