// Package persistence defines the handoff contract to an external
// chat-history store — the runtime only defines the interface, not the
// schema — and ships one concrete sqlite-backed adapter that satisfies
// it using the pure-Go modernc.org/sqlite driver.
package persistence

import (
	"context"

	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Store is the contract the session runner hands completed assistant
// turns to (structurally identical to sessions.Store, kept import-free
// of that package so the persistence boundary doesn't depend on the
// runner's internals). Insertion must succeed before the turn is
// acknowledged to the client; a failing Store causes the runner to roll
// the turn back out of the in-memory transcript instead of retrying.
type Store interface {
	SaveTurn(ctx context.Context, sessionID string, turn models.Turn) error
}
