package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Client runs every request through decorate, send, classify and, for
// refresh statuses, the refresh coordinator.
type Client struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver

	store     CredentialStore
	transport Transport
	login     PasswordLogin
	notifier  Notifier

	decorator   *Decorator
	classifier  *Classifier
	coordinator *Coordinator
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("authclient", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authclient"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.store == nil {
		return nil, badInputError("core: credential store is required")
	}
	if builder.transport == nil {
		return nil, badInputError("core: transport is required")
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "core: load config failed").
			WithTextCode(ErrorBadInput)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "core: resolve config failed").
			WithTextCode(ErrorBadInput)
	}
	finalConfig = finalConfig.normalized()

	if builder.refresher == nil || builder.login == nil {
		oauth := NewOAuth2Refresher(finalConfig, builder.transport)
		if builder.refresher == nil {
			builder.refresher = oauth
		}
		if builder.login == nil {
			builder.login = oauth
		}
	}

	client := &Client{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		store:           builder.store,
		transport:       builder.transport,
		login:           builder.login,
		notifier:        builder.notifier,
		decorator:       NewDecorator(finalConfig, builder.store, builder.locale, logger),
		classifier:      NewClassifier(finalConfig),
	}
	client.coordinator = NewCoordinator(finalConfig, CoordinatorDeps{
		Store:         builder.store,
		Refresher:     builder.refresher,
		ExpiryHandler: builder.expiryHandler,
		Replay:        client.replay,
		Logger:        logger,
		Observe:       client.observeExchange,
	})
	return client, nil
}

func (c *Client) Config() Config {
	return c.config
}

func (c *Client) Store() CredentialStore {
	return c.store
}

type Dependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Store           CredentialStore
	Transport       Transport
	Login           PasswordLogin
	Notifier        Notifier
}

func (c *Client) Dependencies() Dependencies {
	return Dependencies{
		Logger:          c.logger,
		LoggerProvider:  c.loggerProvider,
		MetricsRecorder: c.metricsRecorder,
		ConfigProvider:  c.configProvider,
		OptionsResolver: c.optionsResolver,
		Store:           c.store,
		Transport:       c.transport,
		Login:           c.login,
		Notifier:        c.notifier,
	}
}

// Do runs req through the pipeline. Unauthorized responses are absorbed by the
// refresh coordinator and surface as KindSessionExpired when the refresh
// fails. The exceptions are SkipAuth requests, exempt token paths and a replay
// rejected again after a successful refresh, which return KindUnauthorized.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.execute(ctx, req, false)
}

func (c *Client) replay(ctx context.Context, req Request) (*Response, error) {
	return c.execute(ctx, req, true)
}

func (c *Client) execute(ctx context.Context, req Request, replay bool) (*Response, error) {
	startedAt := time.Now()
	outgoing := c.decorator.Decorate(ctx, req)
	res, transportErr := c.transport.Do(ctx, outgoing)
	classification := c.classifier.Classify(req, res, transportErr)

	fields := map[string]any{
		"method": outgoing.Method,
		"url":    outgoing.URL,
		"status": res.StatusCode,
		"replay": replay,
	}

	switch classification.Outcome {
	case OutcomeSuccess:
		c.observeExchange(ctx, startedAt, "request", nil, fields)
		return classification.Response, nil
	case OutcomeRaw:
		c.observeExchange(ctx, startedAt, "request", classification.Err, fields)
		return classification.Response, classification.Err
	}

	classified, _ := AsClassified(classification.Err)
	if classified != nil {
		fields["kind"] = classified.Kind
	}
	c.observeExchange(ctx, startedAt, "request", classification.Err, fields)

	if classification.Unauthorized() && !replay && !req.SkipAuth && !c.coordinator.IsExempt(outgoing.URL) {
		return c.coordinator.Await(ctx, req)
	}

	c.notify(ctx, classified)
	return classification.Response, classification.Err
}

func (c *Client) notify(ctx context.Context, classified *ClassifiedError) {
	if c.notifier == nil || classified == nil {
		return
	}
	if classified.Kind == KindSessionExpired {
		return
	}
	if classified.Kind == KindNetwork && ctx.Err() != nil && isContextError(classified) {
		return
	}
	c.notifier.Notify(ctx, classified)
}

func (c *Client) Get(ctx context.Context, target string, query map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: target, Query: query})
}

func (c *Client) Post(ctx context.Context, target string, payload any) (*Response, error) {
	req, err := jsonRequest(http.MethodPost, target, payload)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *Client) PostForm(ctx context.Context, target string, values url.Values) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     target,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(values.Encode()),
	})
}

func (c *Client) Put(ctx context.Context, target string, payload any) (*Response, error) {
	req, err := jsonRequest(http.MethodPut, target, payload)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *Client) Delete(ctx context.Context, target string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, URL: target})
}

// Login runs the password grant and stores the issued token pair.
func (c *Client) Login(ctx context.Context, username string, password string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	pair, err := c.login.Login(ctx, username, password)
	if err == nil {
		err = storeTokenPair(ctx, c.store, pair)
	}
	c.observeExchange(ctx, startedAt, "login", err, map[string]any{"username": strings.TrimSpace(username)})
	return err
}

// Logout clears the stored session. It does not call the backend.
func (c *Client) Logout(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	var errs []error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken} {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		err = goerrors.Wrap(err, goerrors.CategoryInternal, "core: clear session failed").
			WithTextCode(ErrorInternal)
	}
	c.observeExchange(ctx, startedAt, "logout", err, nil)
	return err
}

// Refresh forces a refresh episode, or joins the running one.
func (c *Client) Refresh(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.coordinator.Refresh(ctx)
}

func (c *Client) State() CoordinatorState {
	return c.coordinator.State()
}

// HasSession reports whether an access token is stored, without waiting
// for the store to become ready.
func (c *Client) HasSession() bool {
	token, ok := c.store.GetString(KeyAccessToken)
	return ok && strings.TrimSpace(token) != ""
}

func jsonRequest(method string, target string, payload any) (Request, error) {
	req := Request{Method: method, URL: target}
	if payload == nil {
		return req, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "core: encode request body failed").
			WithTextCode(ErrorBadInput)
	}
	req.Body = body
	req.Headers = map[string]string{"Content-Type": "application/json"}
	return req, nil
}
