package core

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type RefreshState int

const (
	RefreshIdle RefreshState = iota
	RefreshRefreshing
)

func (s RefreshState) String() string {
	switch s {
	case RefreshIdle:
		return "idle"
	case RefreshRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

type CoordinatorState struct {
	State    RefreshState
	Pending  int
	Episodes int64
}

// ReplayFunc sends a queued request through the full pipeline once more.
// Replays never re-enter the coordinator: a replay that is rejected again
// reaches its caller as KindUnauthorized, not KindSessionExpired, and does
// not start another refresh.
type ReplayFunc func(ctx context.Context, req Request) (*Response, error)

type ExchangeObserver func(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any)

type CoordinatorDeps struct {
	Store         CredentialStore
	Refresher     TokenRefresher
	ExpiryHandler SessionExpiryHandler
	Replay        ReplayFunc
	Logger        Logger
	Observe       ExchangeObserver
}

type exchangeResult struct {
	response *Response
	err      error
}

type pendingRequest struct {
	id  string
	ctx context.Context
	// request is nil for callers that only wait on the refresh itself.
	request *Request
	done    chan exchangeResult
}

func (p *pendingRequest) resolve(result exchangeResult) {
	select {
	case p.done <- result:
	default:
	}
}

// Coordinator serializes token refresh. At most one refresh exchange runs at
// a time; every request that fails with a refresh status while one is running
// waits in a FIFO queue and is either replayed once or failed with
// SessionExpired when the episode ends.
type Coordinator struct {
	mu       sync.Mutex
	state    RefreshState
	queue    []*pendingRequest
	episodes int64

	config        Config
	store         CredentialStore
	refresher     TokenRefresher
	expiryHandler SessionExpiryHandler
	replay        ReplayFunc
	logger        Logger
	observe       ExchangeObserver
	exempt        []string
}

func NewCoordinator(cfg Config, deps CoordinatorDeps) *Coordinator {
	cfg = cfg.normalized()
	exempt := []string{normalizeExemptPath(cfg.TokenPath)}
	for _, path := range cfg.ExemptPaths {
		if normalized := normalizeExemptPath(path); normalized != "" {
			exempt = append(exempt, normalized)
		}
	}
	return &Coordinator{
		config:        cfg,
		store:         deps.Store,
		refresher:     deps.Refresher,
		expiryHandler: deps.ExpiryHandler,
		replay:        deps.Replay,
		logger:        deps.Logger,
		observe:       deps.Observe,
		exempt:        exempt,
	}
}

// IsExempt reports whether rawURL targets the token endpoint or another path
// that must never trigger a refresh.
func (c *Coordinator) IsExempt(rawURL string) bool {
	path := strings.TrimSpace(rawURL)
	if parsed, err := url.Parse(path); err == nil {
		path = parsed.Path
	}
	path = normalizeExemptPath(path)
	if path == "" {
		return false
	}
	for _, candidate := range c.exempt {
		if path == candidate || strings.HasSuffix(path, candidate) {
			return true
		}
	}
	return false
}

// Await parks req until the current (or a newly started) refresh episode
// finishes, then returns the replay result or a SessionExpired error.
func (c *Coordinator) Await(ctx context.Context, req Request) (*Response, error) {
	queued := req.clone()
	return c.wait(ctx, c.enqueue(ctx, &queued))
}

// Refresh joins the running refresh episode, or starts one.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err := c.wait(ctx, c.enqueue(ctx, nil))
	return err
}

func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CoordinatorState{
		State:    c.state,
		Pending:  len(c.queue),
		Episodes: c.episodes,
	}
}

func (c *Coordinator) enqueue(ctx context.Context, req *Request) *pendingRequest {
	entry := &pendingRequest{
		id:      uuid.NewString(),
		ctx:     ctx,
		request: req,
		done:    make(chan exchangeResult, 1),
	}

	c.mu.Lock()
	c.queue = append(c.queue, entry)
	start := c.state == RefreshIdle
	if start {
		c.state = RefreshRefreshing
		c.episodes++
	}
	pending := len(c.queue)
	c.mu.Unlock()

	if start {
		episodeID := uuid.NewString()
		logWithLevel(ctx, c.logger, "debug", "refresh episode started", map[string]any{
			"episode_id": episodeID,
			"pending_id": entry.id,
		})
		go c.runEpisode(context.WithoutCancel(ctx), episodeID)
	} else {
		logWithLevel(ctx, c.logger, "debug", "request queued behind refresh", map[string]any{
			"pending_id": entry.id,
			"queue_len":  pending,
		})
	}
	return entry
}

func (c *Coordinator) wait(ctx context.Context, entry *pendingRequest) (*Response, error) {
	select {
	case result := <-entry.done:
		return result.response, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) runEpisode(ctx context.Context, episodeID string) {
	startedAt := time.Now()
	pair, err := c.exchange(ctx)
	if err == nil {
		err = storeTokenPair(ctx, c.store, pair)
	}
	if c.observe != nil {
		c.observe(ctx, startedAt, "refresh", err, map[string]any{"episode_id": episodeID})
	}
	if err != nil {
		c.fail(ctx, episodeID, err)
		return
	}
	c.drain(ctx, episodeID)
}

func (c *Coordinator) exchange(ctx context.Context) (TokenPair, error) {
	if c.store == nil {
		return TokenPair{}, internalError("core: credential store is not configured")
	}
	if c.refresher == nil {
		return TokenPair{}, internalError("core: token refresher is not configured")
	}

	readCtx, cancelRead := context.WithTimeout(ctx, c.config.StoreReadyTimeout)
	refreshToken, ok, err := c.store.GetStringAsync(readCtx, KeyRefreshToken)
	cancelRead()
	if err != nil {
		return TokenPair{}, goerrors.Wrap(err, goerrors.CategoryInternal, "core: read refresh token failed").
			WithTextCode(ErrorInternal)
	}
	if !ok || strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, goerrors.New("core: no refresh token available", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(ErrorSessionExpired)
	}

	refreshCtx, cancel := context.WithTimeout(ctx, c.config.RefreshTimeout)
	defer cancel()
	return c.refresher.Refresh(refreshCtx, refreshToken)
}

func storeTokenPair(ctx context.Context, store CredentialStore, pair TokenPair) error {
	if err := store.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "core: store access token failed").
			WithTextCode(ErrorInternal)
	}
	// Servers that do not rotate refresh tokens leave the stored one in place.
	if strings.TrimSpace(pair.RefreshToken) == "" {
		return nil
	}
	if err := store.Set(ctx, KeyRefreshToken, pair.RefreshToken); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "core: store refresh token failed").
			WithTextCode(ErrorInternal)
	}
	return nil
}

// drain replays queued requests in enqueue order. Requests that join while a
// batch is replaying are picked up by the next pass; the coordinator only
// returns to idle once the queue is empty.
func (c *Coordinator) drain(ctx context.Context, episodeID string) {
	replayed := 0
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.state = RefreshIdle
			c.mu.Unlock()
			logWithLevel(ctx, c.logger, "debug", "refresh episode succeeded", map[string]any{
				"episode_id": episodeID,
				"replayed":   replayed,
			})
			return
		}
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, entry := range batch {
			c.replayEntry(entry)
			replayed++
		}
	}
}

func (c *Coordinator) replayEntry(entry *pendingRequest) {
	if entry.request == nil {
		entry.resolve(exchangeResult{})
		return
	}
	if err := entry.ctx.Err(); err != nil {
		entry.resolve(exchangeResult{err: err})
		return
	}
	if c.replay == nil {
		entry.resolve(exchangeResult{err: internalError("core: replay is not configured")})
		return
	}
	response, err := c.replay(entry.ctx, *entry.request)
	entry.resolve(exchangeResult{response: response, err: err})
}

func (c *Coordinator) fail(ctx context.Context, episodeID string, cause error) {
	for _, key := range []string{KeyAccessToken, KeyRefreshToken} {
		if c.store == nil {
			break
		}
		if err := c.store.Delete(ctx, key); err != nil {
			logWithLevel(ctx, c.logger, "warn", "credential delete failed", map[string]any{
				"episode_id": episodeID,
				"key":        key,
				"error":      err.Error(),
			})
		}
	}

	logWithLevel(ctx, c.logger, "warn", "refresh episode failed, session expired", map[string]any{
		"episode_id": episodeID,
		"error":      cause.Error(),
	})
	if c.expiryHandler != nil {
		c.expiryHandler.SessionExpired(ctx)
	}

	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.state = RefreshIdle
	c.mu.Unlock()

	for _, entry := range batch {
		entry.resolve(exchangeResult{err: newSessionExpiredError(cause)})
	}
}

func normalizeExemptPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if parsed, err := url.Parse(path); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return "/" + path
}
