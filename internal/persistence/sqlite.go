package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/haasonsaas/orchestrator/pkg/models"
)

// SQLiteStore is the default chat-history adapter: one row per turn,
// keyed by session id, in a local SQLite file. It is the minimal
// default the handoff contract ships with, not a schema the rest of
// the runtime is aware of.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path
// and ensures its schema exists. A single connection is held open
// (SetMaxOpenConns(1)) so concurrent session runners serialize through
// one writer, avoiding SQLITE_BUSY under concurrent writes.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		turn_id    INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		agent_name TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, turn_id)
	)`)
	if err != nil {
		return fmt.Errorf("create turns table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id)`)
	if err != nil {
		return fmt.Errorf("create turns index: %w", err)
	}
	return nil
}

// SaveTurn inserts turn for sessionID. A duplicate (session_id, turn_id)
// pair replaces the prior row, making retried saves idempotent.
func (s *SQLiteStore) SaveTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO turns (session_id, turn_id, role, content, agent_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, turn.ID, string(turn.Role), turn.Content, turn.AgentName, turn.Timestamp.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("persistence: save turn failed", "session_id", sessionID, "turn_id", turn.ID, "error", err)
		return fmt.Errorf("save turn: %w", err)
	}
	s.logger.Debug("persistence: save turn ok", "session_id", sessionID, "turn_id", turn.ID, "duration", time.Since(start))
	return nil
}

// LoadTurns returns every persisted turn for sessionID, oldest first.
// The session runner does not call it: a new runner starts with an empty
// transcript.
func (s *SQLiteStore) LoadTurns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, role, content, agent_name, created_at FROM turns
		 WHERE session_id = ? ORDER BY turn_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var out []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		var agentName sql.NullString
		var createdAt int64
		if err := rows.Scan(&t.ID, &role, &t.Content, &agentName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = models.Role(role)
		if agentName.Valid {
			t.AgentName = agentName.String
		}
		t.Timestamp = time.UnixMilli(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
