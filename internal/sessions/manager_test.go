package sessions

import (
	"testing"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

func newTestManager() *Manager {
	return NewManager("scout", func(session *models.Session) *Runner {
		return NewRunner(session, RunnerConfig{Engine: &fakeEngine{finalText: "ok", activeAgent: "scout"}})
	})
}

func TestGetOrCreateIsCreateOnFirstReference(t *testing.T) {
	m := newTestManager()
	r1 := m.GetOrCreate("abc")
	r2 := m.GetOrCreate("abc")
	if r1 != r2 {
		t.Fatal("expected the same runner on repeated GetOrCreate for the same id")
	}
	if r1.SessionMeta().AppName != "scout" {
		t.Fatalf("expected app name to equal root agent name, got %q", r1.SessionMeta().AppName)
	}
}

func TestCreateAllocatesFreshIDAndOptionalName(t *testing.T) {
	m := newTestManager()
	r := m.Create("kitchen")
	if r.SessionMeta().ID == "" {
		t.Fatal("expected a generated session id")
	}
	if r.SessionMeta().Name != "kitchen" {
		t.Fatalf("expected renamed session, got %q", r.SessionMeta().Name)
	}
}

func TestGetMissingSession(t *testing.T) {
	m := newTestManager()
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected no runner for an unknown session id")
	}
}

func TestRemoveUnknownSessionErrors(t *testing.T) {
	m := newTestManager()
	if err := m.Remove("missing"); err == nil {
		t.Fatal("expected an error removing an unknown session")
	}
}

func TestRemoveDeletesSession(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("abc")
	if err := m.Remove("abc"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("abc"); ok {
		t.Fatal("expected session to be gone after Remove")
	}
}

func TestListReturnsAllSessionMetadata(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("a")
	m.GetOrCreate("b")
	list := m.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
}
