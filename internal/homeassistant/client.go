package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/orchestrator/internal/backoff"
	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/observability"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// Message types exchanged on the Home Assistant WebSocket API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgEvent        = "event"
	msgResult       = "result"
	msgPing         = "ping"
	msgPong         = "pong"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	registryRequestTimeout = 30 * time.Second
)

// Client maintains a single authenticated duplex connection to the HA
// hub, multiplexing request/response pairs and unsolicited events over
// that connection.
type Client struct {
	url   string
	token string
	cache *Cache

	logger  *observability.Logger
	metrics *observability.Metrics
	policy  backoff.BackoffPolicy

	running atomic.Bool
	stopped chan struct{}

	connMu sync.Mutex // guards conn and writes to it
	conn   *websocket.Conn

	idCounter int64

	cycleMu  sync.Mutex // held for the duration of one request/response cycle
	awaiting struct {
		mu sync.Mutex
		id int64
		ch chan json.RawMessage
	}

	haVersion string
}

// Config carries the parameters needed to construct a Client.
type Config struct {
	URL     string
	Token   string
	Cache   *Cache
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Policy  backoff.BackoffPolicy
}

// NewClient builds a Client. Start must be called to begin connecting.
func NewClient(cfg Config) *Client {
	policy := cfg.Policy
	if policy == (backoff.BackoffPolicy{}) {
		policy = backoff.DefaultPolicy()
	}
	return &Client{
		url:     cfg.URL,
		token:   cfg.Token,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		policy:  policy,
		stopped: make(chan struct{}),
	}
}

// Start begins the connect/reconnect loop in the background.
func (c *Client) Start(ctx context.Context) {
	c.running.Store(true)
	go c.connectLoop(ctx)
}

// Stop sets is_running false, closes the socket, and returns once the
// background loop has observed shutdown.
func (c *Client) Stop() {
	c.running.Store(false)
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
	<-c.stopped
}

func (c *Client) connectLoop(ctx context.Context) {
	defer close(c.stopped)
	attempt := 0
	for c.running.Load() {
		if ctx.Err() != nil {
			return
		}
		attempt++
		err := c.connectOnce(ctx)
		c.failPendingWith(errs.New(errs.KindConnectionReset, "home assistant connection lost"))
		if err != nil {
			if c.logger != nil {
				c.logger.Warn(ctx, "home assistant connect failed", "error", err, "attempt", attempt)
			}
			if c.metrics != nil {
				c.metrics.HAReconnects.Inc()
			}
			delay := backoff.ComputeBackoff(c.policy, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0
	}
}

// connectOnce dials, authenticates, resubscribes, and runs the listener
// until the connection drops. It returns once the socket has closed.
func (c *Client) connectOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	atomic.StoreInt64(&c.idCounter, 0)

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	// The listener must be running before resubscribing: request() waits
	// for results that only the listener's dispatch delivers.
	listenErr := make(chan error, 1)
	go func() { listenErr <- c.listen(ctx, conn) }()

	if err := c.resubscribeAll(ctx); err != nil {
		if c.logger != nil {
			c.logger.Warn(ctx, "home assistant resubscribe failed", "error", err)
		}
	}

	return <-listenErr
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	var required struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&required); err != nil {
		return err
	}
	if required.Type != msgAuthRequired {
		return errs.New(errs.KindAuthRejected, "expected auth_required, got "+required.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": msgAuth, "access_token": c.token}); err != nil {
		return err
	}

	var reply struct {
		Type    string `json:"type"`
		Version string `json:"ha_version"`
		Message string `json:"message"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		return err
	}
	switch reply.Type {
	case msgAuthOK:
		c.haVersion = reply.Version
		return nil
	case msgAuthInvalid:
		return errs.New(errs.KindAuthRejected, "home assistant rejected auth token: "+reply.Message)
	default:
		return errs.New(errs.KindAuthRejected, "unexpected auth response type "+reply.Type)
	}
}

func (c *Client) resubscribeAll(ctx context.Context) error {
	if _, err := c.Subscribe(ctx, "state_changed"); err != nil {
		return err
	}
	if _, err := c.GetAllStates(ctx); err != nil {
		return err
	}
	if _, err := c.GetEntityRegistryForDisplay(ctx); err != nil {
		return err
	}
	if _, err := c.GetDeviceRegistry(ctx); err != nil {
		return err
	}
	return nil
}

// listen runs the single reader task: it decodes frames and dispatches
// them either to an in-flight request/response cycle or to the cache as
// an unsolicited event. It returns when the connection errors.
func (c *Client) listen(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	var envelope struct {
		ID   int64           `json:"id"`
		Type string          `json:"type"`
		Raw  json.RawMessage `json:"-"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case msgEvent:
		c.handleEvent(data)
	case msgPong:
		return
	case msgResult:
		c.awaiting.mu.Lock()
		matches := c.awaiting.ch != nil && c.awaiting.id == envelope.ID
		ch := c.awaiting.ch
		c.awaiting.mu.Unlock()
		if matches {
			ch <- data
		}
		// results for unmatched ids are dropped: no in-flight cycle is
		// waiting on them.
	}
}

func (c *Client) handleEvent(data []byte) {
	var frame struct {
		Event struct {
			EventType string `json:"event_type"`
			Data      struct {
				EntityID string           `json:"entity_id"`
				NewState *models.HAEntity `json:"new_state"`
			} `json:"data"`
		} `json:"event"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Event.EventType != "state_changed" {
		return
	}
	c.cache.ApplyStateChanged(frame.Event.Data.EntityID, frame.Event.Data.NewState)
}

// request runs one full request/response cycle under cycleMu: assign an
// id, send, and wait for the matching result (or timeout/context
// cancellation). Only one cycle is ever in flight on the socket at a
// time, satisfying the no-interleaving invariant.
func (c *Client) request(ctx context.Context, payload map[string]any, timeout time.Duration) (json.RawMessage, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return nil, errs.New(errs.KindConnectionReset, "home assistant client is not connected")
	}

	id := atomic.AddInt64(&c.idCounter, 1)
	payload["id"] = id

	resultCh := make(chan json.RawMessage, 1)
	c.awaiting.mu.Lock()
	c.awaiting.id = id
	c.awaiting.ch = resultCh
	c.awaiting.mu.Unlock()
	defer func() {
		c.awaiting.mu.Lock()
		c.awaiting.ch = nil
		c.awaiting.mu.Unlock()
	}()

	c.connMu.Lock()
	err := conn.WriteJSON(payload)
	c.connMu.Unlock()
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionReset, err, "write failed")
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case raw, ok := <-resultCh:
		if !ok || raw == nil {
			return nil, errs.New(errs.KindConnectionReset, "home assistant connection lost mid-request")
		}
		return parseResult(raw)
	case <-cctx.Done():
		return nil, errs.New(errs.KindRequestTimeout, "home assistant request timed out")
	}
}

func parseResult(raw json.RawMessage) (json.RawMessage, error) {
	var result struct {
		Success bool `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "malformed result frame")
	}
	if !result.Success {
		return nil, errs.New(errs.KindInternal, fmt.Sprintf("home assistant error %s: %s", result.Error.Code, result.Error.Message))
	}
	return result.Result, nil
}

// failPendingWith unblocks any in-flight request cycle after the
// connection drops, so request() observes ConnectionReset rather than
// hanging until its timeout.
func (c *Client) failPendingWith(_ error) {
	c.awaiting.mu.Lock()
	ch := c.awaiting.ch
	c.awaiting.ch = nil
	c.awaiting.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Subscribe registers interest in an HA event type (e.g. state_changed).
func (c *Client) Subscribe(ctx context.Context, eventType string) (models.HASubscription, error) {
	raw, err := c.request(ctx, map[string]any{
		"type":       "subscribe_events",
		"event_type": eventType,
	}, defaultRequestTimeout)
	if err != nil {
		return models.HASubscription{}, err
	}
	_ = raw
	return models.HASubscription{EventType: eventType}, nil
}

// GetAllStates fetches the full current state list and applies it to the
// cache.
func (c *Client) GetAllStates(ctx context.Context) ([]models.HAEntity, error) {
	raw, err := c.request(ctx, map[string]any{"type": "get_states"}, registryRequestTimeout)
	if err != nil {
		return nil, err
	}
	var states []models.HAEntity
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decode get_states result")
	}
	for i := range states {
		state := states[i]
		c.cache.ApplyStateChanged(state.EntityID, &state)
	}
	return states, nil
}

// GetEntityRegistry fetches the entity registry.
func (c *Client) GetEntityRegistry(ctx context.Context) ([]models.HARegistryEntry, error) {
	return c.getEntityRegistry(ctx, "config/entity_registry/list")
}

// GetEntityRegistryForDisplay fetches the display-optimized entity
// registry variant, which HA serves with denser aliasing metadata.
func (c *Client) GetEntityRegistryForDisplay(ctx context.Context) ([]models.HARegistryEntry, error) {
	return c.getEntityRegistry(ctx, "config/entity_registry/list_for_display")
}

func (c *Client) getEntityRegistry(ctx context.Context, requestType string) ([]models.HARegistryEntry, error) {
	raw, err := c.request(ctx, map[string]any{"type": requestType}, registryRequestTimeout)
	if err != nil {
		return nil, err
	}
	var entries []models.HARegistryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decode entity registry result")
	}
	byID := make(map[string]models.HARegistryEntry, len(entries))
	for _, e := range entries {
		byID[e.EntityID] = e
	}
	c.cache.ReplaceRegistry(byID)
	return entries, nil
}

// GetDeviceRegistry fetches the device registry.
func (c *Client) GetDeviceRegistry(ctx context.Context) ([]models.HADeviceEntry, error) {
	raw, err := c.request(ctx, map[string]any{"type": "config/device_registry/list"}, registryRequestTimeout)
	if err != nil {
		return nil, err
	}
	var entries []models.HADeviceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decode device registry result")
	}
	byID := make(map[string]models.HADeviceEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	c.cache.ReplaceDevices(byID)
	return entries, nil
}

// CallService invokes a Home Assistant service call, e.g. domain "light",
// service "turn_on".
func (c *Client) CallService(ctx context.Context, domain, service string, serviceData map[string]any, target map[string]any) error {
	payload := map[string]any{
		"type":         "call_service",
		"domain":       domain,
		"service":      service,
		"service_data": serviceData,
	}
	if target != nil {
		payload["target"] = target
	}
	_, err := c.request(ctx, payload, defaultRequestTimeout)
	return err
}

// Version returns the ha_version captured at the last successful
// handshake, or "" before any connection has completed.
func (c *Client) Version() string {
	return strings.Clone(c.haVersion)
}
