package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-authclient/core"
)

const defaultClientTimeout = 60 * time.Second
const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport performs exchanges over net/http. Non-2xx responses are
// returned as responses; only failures to obtain a response are errors.
type HTTPTransport struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	UserAgent            string
	MaxResponseBodyBytes int64
	Logger               core.Logger
}

type Option func(*HTTPTransport)

func WithDefaultHeaders(headers map[string]string) Option {
	return func(t *HTTPTransport) {
		for key, value := range headers {
			t.DefaultHeaders[key] = value
		}
	}
}

func WithUserAgent(agent string) Option {
	return func(t *HTTPTransport) {
		t.UserAgent = strings.TrimSpace(agent)
	}
}

func WithMaxResponseBodyBytes(limit int64) Option {
	return func(t *HTTPTransport) {
		t.MaxResponseBodyBytes = limit
	}
}

func WithLogger(logger core.Logger) Option {
	return func(t *HTTPTransport) {
		t.Logger = logger
	}
}

func NewHTTPTransport(client HTTPDoer, opts ...Option) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	transport := &HTTPTransport{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(transport)
		}
	}
	transport.Logger = glog.Ensure(transport.Logger)
	return transport
}

func (t *HTTPTransport) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if t == nil || t.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: http transport requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return core.TransportResponse{}, err
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, target, body)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"method": method, "url": target},
		)
	}
	for key, value := range t.DefaultHeaders {
		if strings.TrimSpace(key) != "" {
			httpReq.Header.Set(strings.TrimSpace(key), value)
		}
	}
	if t.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.UserAgent)
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) != "" {
			httpReq.Header.Set(strings.TrimSpace(key), value)
		}
	}

	startedAt := time.Now().UTC()
	httpRes, err := t.Client.Do(httpReq)
	if err != nil {
		t.Logger.Debug("http exchange failed", "method", method, "url", target, "error", err.Error())
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"method": method, "url": target},
		)
	}
	defer httpRes.Body.Close()

	limit := t.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode},
		)
	}
	if int64(len(payload)) > limit {
		return core.TransportResponse{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"status_code":      httpRes.StatusCode,
				"response_limit_b": limit,
			},
		)
	}

	duration := time.Since(startedAt)
	t.Logger.Debug("http exchange",
		"method", method,
		"url", target,
		"status", httpRes.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"headers", core.RedactHeaders(flattenHeaders(httpReq.Header)),
	)

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": duration.Milliseconds(),
		},
	}, nil
}

func buildURL(raw string, params map[string]string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", transportError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"url": raw},
		)
	}
	if len(params) > 0 {
		query := parsed.Query()
		for key, value := range params {
			if strings.TrimSpace(key) == "" {
				continue
			}
			query.Set(strings.TrimSpace(key), value)
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.Transport = (*HTTPTransport)(nil)
