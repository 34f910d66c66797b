package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type testStore struct {
	mu      sync.Mutex
	values  map[string]string
	ready   chan struct{}
	setErr  error
	readErr error
	deleted []string
}

func newTestStore(values map[string]string) *testStore {
	store := &testStore{values: map[string]string{}, ready: make(chan struct{})}
	for key, value := range values {
		store.values[key] = value
	}
	close(store.ready)
	return store
}

func newPendingTestStore(values map[string]string) *testStore {
	store := &testStore{values: map[string]string{}, ready: make(chan struct{})}
	for key, value := range values {
		store.values[key] = value
	}
	return store
}

func (s *testStore) markReady() {
	close(s.ready)
}

func (s *testStore) WaitReady(ctx context.Context) bool {
	select {
	case <-s.ready:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *testStore) GetString(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *testStore) GetStringAsync(ctx context.Context, key string) (string, bool, error) {
	if !s.WaitReady(ctx) {
		return "", false, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", false, s.readErr
	}
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *testStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *testStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type recordingTransport struct {
	mu       sync.Mutex
	requests []TransportRequest
	handler  func(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

func (t *recordingTransport) Do(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	return t.handler(ctx, req)
}

func (t *recordingTransport) snapshot() []TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransportRequest, len(t.requests))
	copy(out, t.requests)
	return out
}

func jsonResponse(status int, payload any) TransportResponse {
	body, _ := json.Marshal(payload)
	return TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// fakeBackend accepts one access token at a time and rotates the pair on
// every refresh_token grant.
type fakeBackend struct {
	mu            sync.Mutex
	validAccess   string
	validRefresh  string
	issued        int
	refreshCalls  int
	refreshStatus int
	refreshGate   chan struct{}
	served        []servedRequest
}

type servedRequest struct {
	path          string
	authorization string
}

func (b *fakeBackend) handle(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return TransportResponse{}, err
	}
	if strings.HasSuffix(parsed.Path, "/auth/oauth2/token") {
		return b.token(ctx, req)
	}

	authorization, _ := lookupHeader(req.Headers, "Authorization")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.validAccess == "" || authorization != "Bearer "+b.validAccess {
		return jsonResponse(http.StatusUnauthorized, map[string]any{"code": 401, "msg": "token expired"}), nil
	}
	b.served = append(b.served, servedRequest{path: parsed.Path, authorization: authorization})
	return jsonResponse(http.StatusOK, map[string]any{
		"code": 0,
		"msg":  "ok",
		"data": map[string]any{"path": parsed.Path},
	}), nil
}

func (b *fakeBackend) token(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return TransportResponse{}, err
	}

	b.mu.Lock()
	gate := b.refreshGate
	if form.Get("grant_type") == "refresh_token" {
		b.refreshCalls++
	}
	b.mu.Unlock()

	if gate != nil && form.Get("grant_type") == "refresh_token" {
		select {
		case <-gate:
		case <-ctx.Done():
			return TransportResponse{}, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch form.Get("grant_type") {
	case "refresh_token":
		if b.refreshStatus != 0 {
			return jsonResponse(b.refreshStatus, map[string]any{"error": "invalid_grant"}), nil
		}
		if form.Get("refresh_token") != b.validRefresh {
			return jsonResponse(http.StatusUnauthorized, map[string]any{"error": "invalid_grant"}), nil
		}
	case "password":
		if form.Get("username") != "alice" || form.Get("password") != "secret" {
			return jsonResponse(http.StatusUnauthorized, map[string]any{"error": "invalid_grant"}), nil
		}
	default:
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"}), nil
	}
	b.issued++
	b.validAccess = fmt.Sprintf("A%d", b.issued)
	b.validRefresh = fmt.Sprintf("R%d", b.issued)
	return jsonResponse(http.StatusOK, map[string]any{
		"access_token":  b.validAccess,
		"refresh_token": b.validRefresh,
		"token_type":    "bearer",
		"expires_in":    3600,
	}), nil
}

// revoke invalidates the current access token server side.
func (b *fakeBackend) revoke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = ""
}

func (b *fakeBackend) refreshes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func (b *fakeBackend) servedRequests() []servedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]servedRequest, len(b.served))
	copy(out, b.served)
	return out
}

type expiryRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *expiryRecorder) SessionExpired(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type notifyRecorder struct {
	mu     sync.Mutex
	errors []*ClassifiedError
}

func (r *notifyRecorder) Notify(_ context.Context, err *ClassifiedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *notifyRecorder) snapshot() []*ClassifiedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ClassifiedError, len(r.errors))
	copy(out, r.errors)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.example.test/v1"
	cfg.ClientID = "mobile"
	cfg.ClientSecret = "s3cret"
	cfg.RefreshTimeout = 2 * time.Second
	cfg.StoreReadyTimeout = 200 * time.Millisecond
	return cfg
}

type testHarness struct {
	client    *Client
	store     *testStore
	backend   *fakeBackend
	transport *recordingTransport
	expiry    *expiryRecorder
	notifier  *notifyRecorder
}

func newTestHarness(t *testing.T, cfg Config, tokens map[string]string, backend *fakeBackend, opts ...Option) *testHarness {
	t.Helper()
	if backend == nil {
		backend = &fakeBackend{}
	}
	h := &testHarness{
		store:     newTestStore(tokens),
		backend:   backend,
		transport: &recordingTransport{handler: backend.handle},
		expiry:    &expiryRecorder{},
		notifier:  &notifyRecorder{},
	}
	options := []Option{
		WithCredentialStore(h.store),
		WithTransport(h.transport),
		WithSessionExpiryHandler(h.expiry),
		WithNotifier(h.notifier),
	}
	options = append(options, opts...)
	client, err := NewClient(cfg, options...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h.client = client
	return h
}

func waitForPending(t *testing.T, client *Client, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.State().Pending >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d pending requests, got %d", want, client.State().Pending)
}

func waitForIdle(t *testing.T, client *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.State().State == RefreshIdle {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected coordinator to return to idle")
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}
