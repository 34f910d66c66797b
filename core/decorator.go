package core

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const headerAuthorization = "Authorization"

// Request describes one caller request before decoration.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	Timeout time.Duration
	// SkipAuth leaves the Authorization header to the caller.
	SkipAuth bool
	// SkipErrorHandling returns raw failures with no refresh and no notification.
	SkipErrorHandling bool
}

func (r Request) clone() Request {
	out := r
	out.Headers = cloneStringMap(r.Headers)
	out.Query = cloneStringMap(r.Query)
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Decorator attaches credentials and context headers to outgoing requests.
// Store failures never block a request: the Basic client credential and the
// default locale are used instead.
type Decorator struct {
	config Config
	store  CredentialStore
	locale LocaleSource
	logger Logger
	basic  string
}

func NewDecorator(cfg Config, store CredentialStore, locale LocaleSource, logger Logger) *Decorator {
	cfg = cfg.normalized()
	return &Decorator{
		config: cfg,
		store:  store,
		locale: locale,
		logger: logger,
		basic:  BasicCredential(cfg.ClientID, cfg.ClientSecret),
	}
}

// BasicCredential returns the Authorization value for the fixed client pair.
func BasicCredential(clientID string, clientSecret string) string {
	raw := strings.TrimSpace(clientID) + ":" + strings.TrimSpace(clientSecret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func BearerCredential(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}

func (d *Decorator) Decorate(ctx context.Context, req Request) TransportRequest {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.config.RequestTimeout
	}
	headers := cloneStringMap(req.Headers)

	if req.SkipAuth {
		if value, ok := lookupHeader(headers, headerAuthorization); ok && strings.TrimSpace(value) != "" {
			setHeader(headers, headerAuthorization, value)
		} else {
			deleteHeader(headers, headerAuthorization)
		}
	} else {
		setHeader(headers, headerAuthorization, d.authorization(ctx))
	}

	setHeader(headers, d.config.Locale.Header, d.resolveLocale(ctx))
	setHeader(headers, d.config.Platform.Header, d.config.Platform.Tag)

	return TransportRequest{
		Method:  method,
		URL:     resolveURL(d.config.BaseURL, req.URL),
		Headers: headers,
		Query:   cloneStringMap(req.Query),
		Body:    req.Body,
		Timeout: timeout,
	}
}

func (d *Decorator) authorization(ctx context.Context) string {
	if d.store == nil {
		return d.basic
	}
	readCtx, cancel := context.WithTimeout(ctx, d.config.StoreReadyTimeout)
	defer cancel()

	token, ok, err := d.store.GetStringAsync(readCtx, KeyAccessToken)
	if err != nil {
		logWithLevel(ctx, d.logger, "warn", "credential store read failed, using client credential", map[string]any{
			"error": err.Error(),
		})
		return d.basic
	}
	if !ok || strings.TrimSpace(token) == "" {
		return d.basic
	}
	return BearerCredential(token)
}

func (d *Decorator) resolveLocale(ctx context.Context) string {
	if d.locale == nil {
		return d.config.Locale.Default
	}
	locale, err := d.locale.Locale(ctx)
	if err != nil || strings.TrimSpace(locale) == "" {
		return d.config.Locale.Default
	}
	return strings.TrimSpace(locale)
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

func setHeader(headers map[string]string, name string, value string) {
	deleteHeader(headers, name)
	if strings.TrimSpace(name) == "" {
		return
	}
	headers[http.CanonicalHeaderKey(name)] = value
}

func deleteHeader(headers map[string]string, name string) {
	for key := range headers {
		if strings.EqualFold(key, name) {
			delete(headers, key)
		}
	}
}
