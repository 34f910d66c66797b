package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "refresh_token"
)

// CredentialStore is the single source of truth for session secrets.
type CredentialStore interface {
	// WaitReady blocks until the store can serve reads or ctx is done.
	WaitReady(ctx context.Context) bool
	// GetString is a best-effort read that never blocks on readiness.
	GetString(key string) (string, bool)
	// GetStringAsync waits for readiness before reading.
	GetStringAsync(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

type TransportRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	Timeout time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Transport performs one exchange. A non-nil error means no response was
// received; a response with an error status is returned with a nil error.
type Transport interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type TransportFunc func(ctx context.Context, req TransportRequest) (TransportResponse, error)

func (f TransportFunc) Do(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	return f(ctx, req)
}

type LocaleSource interface {
	Locale(ctx context.Context) (string, error)
}

type StaticLocale string

func (l StaticLocale) Locale(context.Context) (string, error) {
	return string(l), nil
}

// Notifier receives terminal request errors, once per failed call.
type Notifier interface {
	Notify(ctx context.Context, err *ClassifiedError)
}

type NotifierFunc func(ctx context.Context, err *ClassifiedError)

func (f NotifierFunc) Notify(ctx context.Context, err *ClassifiedError) {
	f(ctx, err)
}

// SessionExpiryHandler is invoked once per failed refresh episode.
type SessionExpiryHandler interface {
	SessionExpired(ctx context.Context)
}

type SessionExpiryFunc func(ctx context.Context)

func (f SessionExpiryFunc) SessionExpired(ctx context.Context) {
	f(ctx)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

type PasswordLogin interface {
	Login(ctx context.Context, username string, password string) (TokenPair, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
