package session

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-authclient/core"
)

type ExpiryOutcome string

const (
	ExpiryNavigated ExpiryOutcome = "navigated"
	ExpiryDegraded  ExpiryOutcome = "degraded"
	ExpiryCanceled  ExpiryOutcome = "canceled"
	// ExpirySuppressed is reported when a handler run is already in progress.
	ExpirySuppressed ExpiryOutcome = "suppressed"
)

// Navigator moves the application to its unauthenticated entry point.
type Navigator interface {
	Ready() bool
	ResetToEntry(ctx context.Context) error
}

// Alerter shows a blocking notice asking the user to sign in again.
type Alerter interface {
	Alert(ctx context.Context, title string, message string) error
}

type AlerterFunc func(ctx context.Context, title string, message string) error

func (f AlerterFunc) Alert(ctx context.Context, title string, message string) error {
	return f(ctx, title, message)
}

const (
	DefaultAlertTitle   = "Session expired"
	DefaultAlertMessage = "Your session has expired. Please sign in again."
)

type Option func(*ExpiryNotifier)

func WithNavigator(navigator Navigator) Option {
	return func(n *ExpiryNotifier) {
		n.navigator = navigator
	}
}

func WithAlerter(alerter Alerter) Option {
	return func(n *ExpiryNotifier) {
		n.alerter = alerter
	}
}

// WithExtraKeys clears additional store keys alongside the token pair.
func WithExtraKeys(keys ...string) Option {
	return func(n *ExpiryNotifier) {
		for _, key := range keys {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				n.keys = append(n.keys, trimmed)
			}
		}
	}
}

func WithAlertText(title string, message string) Option {
	return func(n *ExpiryNotifier) {
		if strings.TrimSpace(title) != "" {
			n.alertTitle = title
		}
		if strings.TrimSpace(message) != "" {
			n.alertMessage = message
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(n *ExpiryNotifier) {
		n.logger = logger
	}
}

// WithOutcomeHook receives the result of every background run started by
// SessionExpired.
func WithOutcomeHook(hook func(ExpiryOutcome)) Option {
	return func(n *ExpiryNotifier) {
		n.onOutcome = hook
	}
}

// ExpiryNotifier clears credentials and navigates to the entry point after a
// failed refresh. Navigation is retried a bounded number of times while the
// navigator is not ready; when attempts run out the user gets an alert.
type ExpiryNotifier struct {
	store        core.CredentialStore
	navigator    Navigator
	alerter      Alerter
	keys         []string
	maxAttempts  int
	delay        time.Duration
	alertTitle   string
	alertMessage string
	logger       core.Logger
	onOutcome    func(ExpiryOutcome)

	mu      sync.Mutex
	running bool
}

func NewExpiryNotifier(store core.CredentialStore, cfg core.SessionExpiryConfig, opts ...Option) (*ExpiryNotifier, error) {
	if store == nil {
		return nil, goerrors.New("session: credential store is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	defaults := core.DefaultConfig().SessionExpiry
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaults.Delay
	}
	notifier := &ExpiryNotifier{
		store:        store,
		keys:         []string{core.KeyAccessToken, core.KeyRefreshToken},
		maxAttempts:  cfg.MaxAttempts,
		delay:        cfg.Delay,
		alertTitle:   DefaultAlertTitle,
		alertMessage: DefaultAlertMessage,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(notifier)
		}
	}
	notifier.logger = glog.Ensure(notifier.logger)
	return notifier, nil
}

// Schedule reports the navigation retry settings in effect.
func (n *ExpiryNotifier) Schedule() core.SessionExpiryConfig {
	return core.SessionExpiryConfig{MaxAttempts: n.maxAttempts, Delay: n.delay}
}

// SessionExpired clears the session synchronously and runs navigation in the
// background so queued callers are not held behind the retry schedule.
func (n *ExpiryNotifier) SessionExpired(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	n.clear(ctx)
	if !n.begin() {
		n.report(ExpirySuppressed)
		return
	}
	go func() {
		defer n.end()
		n.report(n.navigate(context.WithoutCancel(ctx)))
	}()
}

// Handle clears the session and blocks until navigation succeeds, the user
// is alerted, or ctx is done.
func (n *ExpiryNotifier) Handle(ctx context.Context) ExpiryOutcome {
	if ctx == nil {
		ctx = context.Background()
	}
	n.clear(ctx)
	if !n.begin() {
		return ExpirySuppressed
	}
	defer n.end()
	return n.navigate(ctx)
}

func (n *ExpiryNotifier) begin() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return false
	}
	n.running = true
	return true
}

func (n *ExpiryNotifier) end() {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
}

func (n *ExpiryNotifier) report(outcome ExpiryOutcome) {
	if n.onOutcome != nil {
		n.onOutcome(outcome)
	}
}

func (n *ExpiryNotifier) clear(ctx context.Context) {
	for _, key := range n.keys {
		if err := n.store.Delete(ctx, key); err != nil {
			n.logger.Warn("session artifact clear failed", "key", key, "error", err.Error())
		}
	}
}

func (n *ExpiryNotifier) navigate(ctx context.Context) ExpiryOutcome {
	if n.navigator != nil {
		for attempt := 1; attempt <= n.maxAttempts; attempt++ {
			if n.navigator.Ready() {
				err := n.navigator.ResetToEntry(ctx)
				if err == nil {
					n.logger.Info("session expired, navigated to entry", "attempt", attempt)
					return ExpiryNavigated
				}
				n.logger.Warn("entry navigation failed", "attempt", attempt, "error", err.Error())
			} else {
				n.logger.Debug("navigator not ready", "attempt", attempt)
			}
			if attempt == n.maxAttempts {
				break
			}
			if !sleep(ctx, n.delay) {
				n.logger.Info("session expiry navigation canceled", "attempt", attempt)
				return ExpiryCanceled
			}
		}
	}

	n.logger.Warn("session expiry navigation exhausted, alerting user", "attempts", n.maxAttempts)
	if n.alerter != nil {
		if err := n.alerter.Alert(ctx, n.alertTitle, n.alertMessage); err != nil {
			n.logger.Error("session expiry alert failed", "error", err.Error())
		}
	}
	return ExpiryDegraded
}

func sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ core.SessionExpiryHandler = (*ExpiryNotifier)(nil)
