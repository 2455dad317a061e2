package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/orchestrator/internal/agent"
	"github.com/haasonsaas/orchestrator/internal/cache"
	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/observability"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

const (
	maxEventTextChars = 100_000
	maxFrameBytes     = 1 << 20 // 1 MiB
	defaultHistoryN   = 50
)

// TurnEngine is the subset of agent.Engine the runner depends on,
// narrowed to an interface so tests can substitute a fake.
type TurnEngine interface {
	Run(ctx context.Context, in agent.Input) (events []models.Event, finalText string, activeAgent string, err error)
}

// Store is the external chat-history persistence contract (spec's
// out-of-scope "chat-history database schema" — only this interface
// ships, plus one default adapter in internal/persistence).
type Store interface {
	SaveTurn(ctx context.Context, sessionID string, turn models.Turn) error
}

// Broadcaster delivers frames to whatever client is currently connected
// to a session (WS or long-poll). A runner with no attached broadcaster
// simply buffers events for later resync.
type Broadcaster interface {
	Send(sessionID string, frame any) error
}

// Runner owns one conversation's turn loop, transcript, and event
// buffer.
type Runner struct {
	mu         sync.Mutex
	session    models.Session
	transcript []models.Turn
	events     []models.Event
	nextTurnID int64
	inProgress bool

	dedupe *cache.DedupeCache

	engine  TurnEngine
	store   Store
	bcast   Broadcaster
	logger  *observability.Logger
	metrics *observability.Metrics
}

// RunnerConfig supplies a Runner's collaborators.
type RunnerConfig struct {
	Engine  TurnEngine
	Store   Store
	Bcast   Broadcaster
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewRunner builds a Runner for session using cfg's collaborators.
func NewRunner(session *models.Session, cfg RunnerConfig) *Runner {
	return &Runner{
		session: *session,
		dedupe:  cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: 5 * time.Minute, MaxSize: 4096}),
		engine:  cfg.Engine,
		store:   cfg.Store,
		bcast:   cfg.Bcast,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// SessionMeta returns a copy of the session's metadata.
func (r *Runner) SessionMeta() models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// SetBroadcaster binds the runner's live output to b, replacing whatever
// was attached before: at most one connected client observes a
// session's events at a time, and a new WS connection takes over from
// whatever was attached previously. Pass nil to detach, leaving events
// buffered for later resync.
func (r *Runner) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcast = b
}

// Rename sets the session's display name.
func (r *Runner) Rename(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Name = name
	r.session.UpdatedAt = time.Now()
}

// Reset clears the transcript and event buffer without destroying the
// runner.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = nil
	r.events = nil
	r.nextTurnID = 0
	r.dedupe.Clear()
	r.session.ActiveAgent = ""
	r.session.UpdatedAt = time.Now()
}

// TurnResult is returned to the HTTP/WS caller after a completed turn.
type TurnResult struct {
	SessionID string
	Response  string
	Events    []models.Event
}

// HandleTurn runs the turn protocol: append the user turn, drive the
// engine, append the assistant turn on success, and return the
// normalized event list. A turn already in progress rejects the new one
// rather than queuing it; a client that wants to interrupt a turn must
// disconnect instead of submitting a second message.
func (r *Runner) HandleTurn(ctx context.Context, userText string) (*TurnResult, error) {
	r.mu.Lock()
	if r.inProgress {
		r.mu.Unlock()
		return nil, errs.New(errs.KindInvalidInput, "a turn is already in progress for this session")
	}
	r.inProgress = true
	startAgent := r.session.ActiveAgent
	history := append([]models.Turn{}, r.transcript...)
	r.transcript = append(r.transcript, models.Turn{
		ID:        r.nextID(),
		Role:      models.RoleUser,
		Content:   userText,
		Timestamp: time.Now(),
	})
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProgress = false
		r.mu.Unlock()
	}()

	events, finalText, activeAgent, err := r.engine.Run(ctx, agent.Input{
		SessionID:  r.session.ID,
		StartAgent: startAgent,
		History:    history,
		UserText:   userText,
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Error(ctx, "turn failed", "session_id", r.session.ID, "error", err)
		}
		return nil, err
	}

	bounded := r.appendEvents(events)

	r.mu.Lock()
	assistantTurn := models.Turn{
		ID:        r.nextID(),
		Role:      models.RoleAssistant,
		Content:   finalText,
		AgentName: activeAgent,
		Timestamp: time.Now(),
	}
	r.mu.Unlock()

	// Persist before ack: a write failure rolls the turn back rather
	// than appending it to the in-memory transcript.
	if r.store != nil {
		if err := r.store.SaveTurn(ctx, r.session.ID, assistantTurn); err != nil {
			if r.logger != nil {
				r.logger.Error(ctx, "persist turn failed", "session_id", r.session.ID, "error", err)
			}
			return nil, errs.Wrap(errs.KindPersistenceError, err, "failed to persist assistant turn")
		}
	}

	r.mu.Lock()
	r.session.ActiveAgent = activeAgent
	r.session.UpdatedAt = time.Now()
	r.transcript = append(r.transcript, assistantTurn)
	bcast := r.bcast
	r.mu.Unlock()

	if bcast != nil {
		for _, frame := range framesFor(bounded) {
			_ = bcast.Send(r.session.ID, frame)
		}
	}

	return &TurnResult{SessionID: r.session.ID, Response: finalText, Events: bounded}, nil
}

func (r *Runner) nextID() int64 {
	r.nextTurnID++
	return r.nextTurnID
}

// appendEvents bounds each event's text, drops duplicates via the
// dedupe cache (keyed on type+summary+timestamp), and appends the
// survivors to the buffer.
func (r *Runner) appendEvents(events []models.Event) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		e = boundEvent(e, r.metrics)
		key := cache.MessageDedupeKey(string(e.Type), e.Summary+"|"+e.Timestamp.Format(time.RFC3339Nano))
		if r.dedupe.Check(key) {
			continue
		}
		r.events = append(r.events, e)
		out = append(out, e)
	}
	return out
}

// boundEvent truncates Text/Details fields longer than maxEventTextChars,
// attaching a visible marker noting the original length.
func boundEvent(e models.Event, metrics *observability.Metrics) models.Event {
	if len(e.Text) > maxEventTextChars {
		original := len(e.Text)
		e.Text = e.Text[:maxEventTextChars] + fmt.Sprintf(" [truncated, original length %d]", original)
		e.Truncated = true
		e.TruncatedFrom = original
		if metrics != nil {
			metrics.EventTruncated.Inc()
		}
	}
	if len(e.Details) > maxEventTextChars {
		original := len(e.Details)
		e.Details = e.Details[:maxEventTextChars] + fmt.Sprintf(" [truncated, original length %d]", original)
		e.Truncated = true
		if metrics != nil {
			metrics.EventTruncated.Inc()
		}
	}
	return e
}

// framesFor packages events into one "events" batch frame, splitting
// into single-event frames whenever the batch would exceed
// maxFrameBytes. Only frames sent through the Broadcaster are split this
// way; the HTTP response carries the whole event list in one body, with
// only boundEvent's per-event truncation applied.
func framesFor(events []models.Event) []any {
	if len(events) == 0 {
		return nil
	}
	batch := map[string]any{"type": "events", "content": events}
	if size, ok := approxSize(batch); ok && size <= maxFrameBytes {
		return []any{batch}
	}

	frames := make([]any, 0, len(events))
	for _, e := range events {
		frames = append(frames, map[string]any{"type": "events", "content": []models.Event{e}})
	}
	return frames
}

func approxSize(v any) (int, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, false
	}
	return len(b), true
}

// SyncSince replays every turn after lastTurnID; an unknown id replays
// nothing.
func (r *Runner) SyncSince(lastTurnID int64) []models.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := lastTurnID == 0
	var out []models.Turn
	for _, t := range r.transcript {
		if found {
			out = append(out, t)
			continue
		}
		if t.ID == lastTurnID {
			found = true
		}
	}
	if !found {
		return nil
	}
	return out
}

// History returns the last limit turns (default defaultHistoryN).
func (r *Runner) History(limit int) []models.Turn {
	if limit <= 0 {
		limit = defaultHistoryN
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.transcript) <= limit {
		return append([]models.Turn{}, r.transcript...)
	}
	return append([]models.Turn{}, r.transcript[len(r.transcript)-limit:]...)
}

// Events returns every event recorded for this session so far.
func (r *Runner) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event{}, r.events...)
}
