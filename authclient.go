package authclient

import (
	"context"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
	"github.com/goliatone/go-authclient/session"
	"github.com/goliatone/go-authclient/store"
	"github.com/goliatone/go-authclient/transport"
)

type Config = core.Config

type Option = core.Option

type Client = core.Client

type Request = core.Request
type Response = core.Response
type ClassifiedError = core.ClassifiedError
type ErrorKind = core.ErrorKind
type CredentialStore = core.CredentialStore
type Transport = core.Transport
type Notifier = core.Notifier
type TokenPair = core.TokenPair

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithCredentialStore      = core.WithCredentialStore
	WithTransport            = core.WithTransport
	WithTokenRefresher       = core.WithTokenRefresher
	WithPasswordLogin        = core.WithPasswordLogin
	WithLocaleSource         = core.WithLocaleSource
	WithNotifier             = core.WithNotifier
	WithSessionExpiryHandler = core.WithSessionExpiryHandler
)

var (
	ErrSessionExpired = core.ErrSessionExpired
	IsKind            = core.IsKind
	AsClassified      = core.AsClassified
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New builds a client backed by an in-memory credential store and the
// net/http transport unless opts replace them.
func New(cfg Config, opts ...Option) (*Client, error) {
	defaults := []Option{
		core.WithCredentialStore(store.NewMemoryStore(nil)),
		core.WithTransport(transport.NewHTTPTransport(nil)),
	}
	return core.NewClient(cfg, append(defaults, opts...)...)
}

type SessionOptions struct {
	Navigator session.Navigator
	Alerter   session.Alerter
	ExtraKeys []string
}

// NewWithSession wires a session.ExpiryNotifier over credentials so a failed
// refresh clears the session and sends the user back to the entry point. The
// notifier uses the session_expiry settings of the resolved client config.
func NewWithSession(cfg Config, credentials CredentialStore, sessionOpts SessionOptions, opts ...Option) (*Client, *session.ExpiryNotifier, error) {
	if credentials == nil {
		return nil, nil, goerrors.New("authclient: credential store is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}

	// Episodes only start from requests issued after this returns.
	var notifier *session.ExpiryNotifier
	handler := core.SessionExpiryFunc(func(ctx context.Context) {
		if notifier != nil {
			notifier.SessionExpired(ctx)
		}
	})
	client, err := New(cfg, append([]Option{
		core.WithCredentialStore(credentials),
		core.WithSessionExpiryHandler(handler),
	}, opts...)...)
	if err != nil {
		return nil, nil, err
	}

	notifierOpts := []session.Option{
		session.WithExtraKeys(sessionOpts.ExtraKeys...),
		session.WithLogger(client.Dependencies().Logger),
	}
	if sessionOpts.Navigator != nil {
		notifierOpts = append(notifierOpts, session.WithNavigator(sessionOpts.Navigator))
	}
	if sessionOpts.Alerter != nil {
		notifierOpts = append(notifierOpts, session.WithAlerter(sessionOpts.Alerter))
	}
	notifier, err = session.NewExpiryNotifier(credentials, client.Config().SessionExpiry, notifierOpts...)
	if err != nil {
		return nil, nil, err
	}
	return client, notifier, nil
}
