package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-authclient/core"
	"github.com/goliatone/go-authclient/store"
)

type scriptedNavigator struct {
	readyAfter int32
	failures   int32
	checks     atomic.Int32
	resets     atomic.Int32
}

func (n *scriptedNavigator) Ready() bool {
	return n.checks.Add(1) > n.readyAfter
}

func (n *scriptedNavigator) ResetToEntry(context.Context) error {
	if n.resets.Add(1) <= n.failures {
		return errors.New("navigation busy")
	}
	return nil
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []string
}

func (a *alertRecorder) Alert(_ context.Context, title string, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, title+": "+message)
	return nil
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

func fastConfig(attempts int) core.SessionExpiryConfig {
	return core.SessionExpiryConfig{MaxAttempts: attempts, Delay: time.Millisecond}
}

func seededStore() *store.MemoryStore {
	return store.NewMemoryStore(map[string]string{
		core.KeyAccessToken:  "A1",
		core.KeyRefreshToken: "R1",
		"profile":            "cached",
		"theme":              "dark",
	})
}

func TestExpiryNotifier_NavigatesWhenReady(t *testing.T) {
	credentials := seededStore()
	navigator := &scriptedNavigator{}
	alerter := &alertRecorder{}
	notifier, err := NewExpiryNotifier(credentials, fastConfig(3),
		WithNavigator(navigator),
		WithAlerter(alerter),
		WithExtraKeys("profile"),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	if outcome := notifier.Handle(context.Background()); outcome != ExpiryNavigated {
		t.Fatalf("expected navigated, got %s", outcome)
	}
	snapshot := credentials.Snapshot()
	for _, key := range []string{core.KeyAccessToken, core.KeyRefreshToken, "profile"} {
		if _, ok := snapshot[key]; ok {
			t.Fatalf("expected %s cleared", key)
		}
	}
	if snapshot["theme"] != "dark" {
		t.Fatalf("expected unrelated keys to survive")
	}
	if alerter.count() != 0 {
		t.Fatalf("expected no alert after navigation")
	}
}

func TestExpiryNotifier_RetriesUntilNavigatorReady(t *testing.T) {
	navigator := &scriptedNavigator{readyAfter: 2, failures: 1}
	notifier, err := NewExpiryNotifier(seededStore(), fastConfig(5), WithNavigator(navigator))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	if outcome := notifier.Handle(context.Background()); outcome != ExpiryNavigated {
		t.Fatalf("expected navigated, got %s", outcome)
	}
	if got := navigator.checks.Load(); got != 4 {
		t.Fatalf("expected 4 readiness checks, got %d", got)
	}
	if got := navigator.resets.Load(); got != 2 {
		t.Fatalf("expected 2 navigation attempts, got %d", got)
	}
}

func TestExpiryNotifier_DegradesAfterBoundedAttempts(t *testing.T) {
	navigator := &scriptedNavigator{readyAfter: 100}
	alerter := &alertRecorder{}
	notifier, err := NewExpiryNotifier(seededStore(), fastConfig(3),
		WithNavigator(navigator),
		WithAlerter(alerter),
		WithAlertText("Signed out", "Sign in again"),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	if outcome := notifier.Handle(context.Background()); outcome != ExpiryDegraded {
		t.Fatalf("expected degraded, got %s", outcome)
	}
	if got := navigator.checks.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
	if alerter.count() != 1 || alerter.alerts[0] != "Signed out: Sign in again" {
		t.Fatalf("expected one custom alert, got %v", alerter.alerts)
	}
}

func TestExpiryNotifier_NoNavigatorAlertsImmediately(t *testing.T) {
	alerter := &alertRecorder{}
	notifier, err := NewExpiryNotifier(seededStore(), fastConfig(3), WithAlerter(alerter))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if outcome := notifier.Handle(context.Background()); outcome != ExpiryDegraded {
		t.Fatalf("expected degraded, got %s", outcome)
	}
	if alerter.count() != 1 {
		t.Fatalf("expected default alert")
	}
}

func TestExpiryNotifier_CanceledContextStopsRetry(t *testing.T) {
	navigator := &scriptedNavigator{readyAfter: 100}
	alerter := &alertRecorder{}
	notifier, err := NewExpiryNotifier(seededStore(), core.SessionExpiryConfig{MaxAttempts: 5, Delay: time.Hour},
		WithNavigator(navigator),
		WithAlerter(alerter),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if outcome := notifier.Handle(ctx); outcome != ExpiryCanceled {
		t.Fatalf("expected canceled, got %s", outcome)
	}
	if alerter.count() != 0 {
		t.Fatalf("expected no alert after cancellation")
	}
}

func TestExpiryNotifier_SessionExpiredRunsInBackground(t *testing.T) {
	credentials := seededStore()
	outcomes := make(chan ExpiryOutcome, 2)
	notifier, err := NewExpiryNotifier(credentials, fastConfig(3),
		WithNavigator(&scriptedNavigator{readyAfter: 1}),
		WithOutcomeHook(func(outcome ExpiryOutcome) { outcomes <- outcome }),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	var handler core.SessionExpiryHandler = notifier
	handler.SessionExpired(context.Background())
	if _, ok := credentials.GetString(core.KeyAccessToken); ok {
		t.Fatalf("expected credentials cleared before SessionExpired returns")
	}

	select {
	case outcome := <-outcomes:
		if outcome != ExpiryNavigated {
			t.Fatalf("expected navigated, got %s", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("background navigation did not report")
	}
}

func TestExpiryNotifier_SuppressesOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	navigator := &blockingNavigator{release: release, entered: make(chan struct{})}
	outcomes := make(chan ExpiryOutcome, 2)
	notifier, err := NewExpiryNotifier(seededStore(), fastConfig(1),
		WithNavigator(navigator),
		WithOutcomeHook(func(outcome ExpiryOutcome) { outcomes <- outcome }),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.SessionExpired(context.Background())
	<-navigator.entered
	notifier.SessionExpired(context.Background())
	if outcome := <-outcomes; outcome != ExpirySuppressed {
		t.Fatalf("expected overlapping run suppressed, got %s", outcome)
	}
	close(release)
	if outcome := <-outcomes; outcome != ExpiryNavigated {
		t.Fatalf("expected first run to navigate, got %s", outcome)
	}
}

type blockingNavigator struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (n *blockingNavigator) Ready() bool { return true }

func (n *blockingNavigator) ResetToEntry(context.Context) error {
	n.once.Do(func() { close(n.entered) })
	<-n.release
	return nil
}

func TestNewExpiryNotifier_RequiresStore(t *testing.T) {
	if _, err := NewExpiryNotifier(nil, fastConfig(1)); err == nil {
		t.Fatalf("expected nil store to be rejected")
	}
}
