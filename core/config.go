package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTokenPath         = "/auth/oauth2/token"
	defaultRequestTimeout    = 30 * time.Second
	defaultRefreshTimeout    = 15 * time.Second
	defaultStoreReadyTimeout = 2 * time.Second
	defaultExpiryAttempts    = 10
	defaultExpiryDelay       = 500 * time.Millisecond
)

type LocaleConfig struct {
	Header  string `koanf:"header" mapstructure:"header"`
	Default string `koanf:"default" mapstructure:"default"`
}

type PlatformConfig struct {
	Header string `koanf:"header" mapstructure:"header"`
	Tag    string `koanf:"tag" mapstructure:"tag"`
}

// EnvelopeConfig describes the business payload wrapper returned by the API:
// {"code": 0, "msg": "...", "data": {...}}.
type EnvelopeConfig struct {
	CodeField    string `koanf:"code_field" mapstructure:"code_field"`
	MessageField string `koanf:"message_field" mapstructure:"message_field"`
	DataField    string `koanf:"data_field" mapstructure:"data_field"`
	SuccessCodes []int  `koanf:"success_codes" mapstructure:"success_codes"`
}

type SessionExpiryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `koanf:"delay" mapstructure:"delay"`
}

type Config struct {
	BaseURL           string              `koanf:"base_url" mapstructure:"base_url"`
	ClientID          string              `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret      string              `koanf:"client_secret" mapstructure:"client_secret"`
	TokenPath         string              `koanf:"token_path" mapstructure:"token_path"`
	Scopes            []string            `koanf:"scopes" mapstructure:"scopes"`
	ExemptPaths       []string            `koanf:"exempt_paths" mapstructure:"exempt_paths"`
	RequestTimeout    time.Duration       `koanf:"request_timeout" mapstructure:"request_timeout"`
	RefreshTimeout    time.Duration       `koanf:"refresh_timeout" mapstructure:"refresh_timeout"`
	StoreReadyTimeout time.Duration       `koanf:"store_ready_timeout" mapstructure:"store_ready_timeout"`
	RefreshStatuses   []int               `koanf:"refresh_statuses" mapstructure:"refresh_statuses"`
	Locale            LocaleConfig        `koanf:"locale" mapstructure:"locale"`
	Platform          PlatformConfig      `koanf:"platform" mapstructure:"platform"`
	Envelope          EnvelopeConfig      `koanf:"envelope" mapstructure:"envelope"`
	SessionExpiry     SessionExpiryConfig `koanf:"session_expiry" mapstructure:"session_expiry"`
}

func DefaultConfig() Config {
	return Config{
		TokenPath:         defaultTokenPath,
		RequestTimeout:    defaultRequestTimeout,
		RefreshTimeout:    defaultRefreshTimeout,
		StoreReadyTimeout: defaultStoreReadyTimeout,
		// 424 is the backend's token-expired convention, not the RFC meaning.
		RefreshStatuses: []int{http.StatusUnauthorized, http.StatusFailedDependency},
		Locale: LocaleConfig{
			Header:  "Accept-Language",
			Default: "en",
		},
		Platform: PlatformConfig{
			Header: "X-Platform",
			Tag:    "app",
		},
		Envelope: EnvelopeConfig{
			CodeField:    "code",
			MessageField: "msg",
			DataField:    "data",
			SuccessCodes: []int{0, http.StatusOK},
		},
		SessionExpiry: SessionExpiryConfig{
			MaxAttempts: defaultExpiryAttempts,
			Delay:       defaultExpiryDelay,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.TokenPath) == "" {
		return fmt.Errorf("core: token_path is required")
	}
	if c.RequestTimeout < 0 || c.RefreshTimeout < 0 || c.StoreReadyTimeout < 0 {
		return fmt.Errorf("core: timeouts must not be negative")
	}
	if len(c.RefreshStatuses) == 0 {
		return fmt.Errorf("core: refresh_statuses is required")
	}
	for _, status := range c.RefreshStatuses {
		if status < 400 || status > 599 {
			return fmt.Errorf("core: refresh status %d is not an error status", status)
		}
	}
	if strings.TrimSpace(c.Envelope.CodeField) == "" {
		return fmt.Errorf("core: envelope.code_field is required")
	}
	if c.SessionExpiry.MaxAttempts < 0 {
		return fmt.Errorf("core: session_expiry.max_attempts must not be negative")
	}
	return nil
}

// TokenURL resolves the token endpoint against the base url.
func (c Config) TokenURL() string {
	return resolveURL(c.BaseURL, c.TokenPath)
}

// IsRefreshStatus reports whether status should drive a token refresh.
func (c Config) IsRefreshStatus(status int) bool {
	for _, candidate := range c.RefreshStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

// normalized fills zero values with defaults so hand-built configs behave.
func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.TokenPath) == "" {
		c.TokenPath = defaults.TokenPath
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = defaults.RefreshTimeout
	}
	if c.StoreReadyTimeout <= 0 {
		c.StoreReadyTimeout = defaults.StoreReadyTimeout
	}
	if len(c.RefreshStatuses) == 0 {
		c.RefreshStatuses = defaults.RefreshStatuses
	}
	if strings.TrimSpace(c.Locale.Header) == "" {
		c.Locale.Header = defaults.Locale.Header
	}
	if strings.TrimSpace(c.Locale.Default) == "" {
		c.Locale.Default = defaults.Locale.Default
	}
	if strings.TrimSpace(c.Platform.Header) == "" {
		c.Platform.Header = defaults.Platform.Header
	}
	if strings.TrimSpace(c.Platform.Tag) == "" {
		c.Platform.Tag = defaults.Platform.Tag
	}
	if strings.TrimSpace(c.Envelope.CodeField) == "" {
		c.Envelope.CodeField = defaults.Envelope.CodeField
	}
	if strings.TrimSpace(c.Envelope.MessageField) == "" {
		c.Envelope.MessageField = defaults.Envelope.MessageField
	}
	if strings.TrimSpace(c.Envelope.DataField) == "" {
		c.Envelope.DataField = defaults.Envelope.DataField
	}
	if len(c.Envelope.SuccessCodes) == 0 {
		c.Envelope.SuccessCodes = defaults.Envelope.SuccessCodes
	}
	if c.SessionExpiry.MaxAttempts == 0 {
		c.SessionExpiry.MaxAttempts = defaults.SessionExpiry.MaxAttempts
	}
	if c.SessionExpiry.Delay <= 0 {
		c.SessionExpiry.Delay = defaults.SessionExpiry.Delay
	}
	return c
}

func resolveURL(baseURL string, target string) string {
	target = strings.TrimSpace(target)
	lowered := strings.ToLower(target)
	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		return target
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return target
	}
	if target == "" {
		return baseURL
	}
	return baseURL + "/" + strings.TrimLeft(target, "/")
}
