package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	turns := []models.Turn{
		{ID: 1, Role: models.RoleUser, Content: "hello", Timestamp: time.Now()},
		{ID: 2, Role: models.RoleAssistant, Content: "hi there", AgentName: "scout", Timestamp: time.Now()},
	}
	for _, turn := range turns {
		if err := store.SaveTurn(ctx, "S1", turn); err != nil {
			t.Fatalf("save turn: %v", err)
		}
	}

	loaded, err := store.LoadTurns(ctx, "S1")
	if err != nil {
		t.Fatalf("load turns: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(loaded))
	}
	if loaded[0].Content != "hello" || loaded[1].Content != "hi there" {
		t.Fatalf("unexpected turn contents: %+v", loaded)
	}
	if loaded[1].AgentName != "scout" {
		t.Fatalf("expected agent name preserved, got %q", loaded[1].AgentName)
	}
}

func TestSaveTurnIsIdempotentOnRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	turn := models.Turn{ID: 1, Role: models.RoleAssistant, Content: "first", Timestamp: time.Now()}
	if err := store.SaveTurn(ctx, "S1", turn); err != nil {
		t.Fatal(err)
	}
	turn.Content = "retried"
	if err := store.SaveTurn(ctx, "S1", turn); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadTurns(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected exactly one row after retry, got %d", len(loaded))
	}
	if loaded[0].Content != "retried" {
		t.Fatalf("expected the retry's content to win, got %q", loaded[0].Content)
	}
}

func TestLoadTurnsEmptySession(t *testing.T) {
	store := newTestStore(t)
	loaded, err := store.LoadTurns(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no turns for an unknown session, got %d", len(loaded))
	}
}
