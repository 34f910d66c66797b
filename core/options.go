package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	glog "github.com/goliatone/go-logger/glog"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	store           CredentialStore
	transport       Transport
	refresher       TokenRefresher
	login           PasswordLogin
	locale          LocaleSource
	notifier        Notifier
	expiryHandler   SessionExpiryHandler
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *clientBuilder) {
		b.store = store
	}
}

func WithTransport(transport Transport) Option {
	return func(b *clientBuilder) {
		b.transport = transport
	}
}

// WithTokenRefresher replaces the oauth2 refresh_token exchange.
func WithTokenRefresher(refresher TokenRefresher) Option {
	return func(b *clientBuilder) {
		b.refresher = refresher
	}
}

func WithPasswordLogin(login PasswordLogin) Option {
	return func(b *clientBuilder) {
		b.login = login
	}
}

func WithLocaleSource(source LocaleSource) Option {
	return func(b *clientBuilder) {
		b.locale = source
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(b *clientBuilder) {
		b.notifier = notifier
	}
}

func WithSessionExpiryHandler(handler SessionExpiryHandler) Option {
	return func(b *clientBuilder) {
		b.expiryHandler = handler
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("authclient", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// MapConfigLoader serves raw configuration from an in-memory map.
func MapConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setString("base_url", cfg.BaseURL)
	setString("client_id", cfg.ClientID)
	setString("client_secret", cfg.ClientSecret)
	setString("token_path", cfg.TokenPath)

	if includeZero || len(cfg.Scopes) > 0 {
		layer["scopes"] = append([]string(nil), cfg.Scopes...)
	}
	if includeZero || len(cfg.ExemptPaths) > 0 {
		layer["exempt_paths"] = append([]string(nil), cfg.ExemptPaths...)
	}
	if includeZero || cfg.RequestTimeout > 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}
	if includeZero || cfg.RefreshTimeout > 0 {
		layer["refresh_timeout"] = cfg.RefreshTimeout
	}
	if includeZero || cfg.StoreReadyTimeout > 0 {
		layer["store_ready_timeout"] = cfg.StoreReadyTimeout
	}
	if includeZero || len(cfg.RefreshStatuses) > 0 {
		layer["refresh_statuses"] = append([]int(nil), cfg.RefreshStatuses...)
	}

	locale := map[string]any{}
	if includeZero || cfg.Locale.Header != "" {
		locale["header"] = cfg.Locale.Header
	}
	if includeZero || cfg.Locale.Default != "" {
		locale["default"] = cfg.Locale.Default
	}
	if len(locale) > 0 {
		layer["locale"] = locale
	}

	platform := map[string]any{}
	if includeZero || cfg.Platform.Header != "" {
		platform["header"] = cfg.Platform.Header
	}
	if includeZero || cfg.Platform.Tag != "" {
		platform["tag"] = cfg.Platform.Tag
	}
	if len(platform) > 0 {
		layer["platform"] = platform
	}

	envelope := map[string]any{}
	if includeZero || cfg.Envelope.CodeField != "" {
		envelope["code_field"] = cfg.Envelope.CodeField
	}
	if includeZero || cfg.Envelope.MessageField != "" {
		envelope["message_field"] = cfg.Envelope.MessageField
	}
	if includeZero || cfg.Envelope.DataField != "" {
		envelope["data_field"] = cfg.Envelope.DataField
	}
	if includeZero || len(cfg.Envelope.SuccessCodes) > 0 {
		envelope["success_codes"] = append([]int(nil), cfg.Envelope.SuccessCodes...)
	}
	if len(envelope) > 0 {
		layer["envelope"] = envelope
	}

	expiry := map[string]any{}
	if includeZero || cfg.SessionExpiry.MaxAttempts > 0 {
		expiry["max_attempts"] = cfg.SessionExpiry.MaxAttempts
	}
	if includeZero || cfg.SessionExpiry.Delay > 0 {
		expiry["delay"] = cfg.SessionExpiry.Delay
	}
	if len(expiry) > 0 {
		layer["session_expiry"] = expiry
	}
	return layer
}
