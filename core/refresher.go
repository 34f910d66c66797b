package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

// OAuth2Refresher runs the refresh_token and password grants against the
// token endpoint. Exchanges go through the configured Transport, never
// through the Decorator.
type OAuth2Refresher struct {
	config    Config
	transport Transport
}

func NewOAuth2Refresher(cfg Config, transport Transport) *OAuth2Refresher {
	return &OAuth2Refresher{config: cfg.normalized(), transport: transport}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if r == nil || r.transport == nil {
		return TokenPair{}, internalError("core: token refresher is not configured")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, badInputError("core: refresh token is required")
	}
	ctx = r.clientContext(ctx)
	source := r.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return TokenPair{}, tokenExchangeError("refresh_token", err)
	}
	return tokenPairFrom(token, refreshToken)
}

func (r *OAuth2Refresher) Login(ctx context.Context, username string, password string) (TokenPair, error) {
	if r == nil || r.transport == nil {
		return TokenPair{}, internalError("core: token refresher is not configured")
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return TokenPair{}, badInputError("core: username and password are required")
	}
	token, err := r.oauthConfig().PasswordCredentialsToken(r.clientContext(ctx), strings.TrimSpace(username), password)
	if err != nil {
		return TokenPair{}, tokenExchangeError("password", err)
	}
	return tokenPairFrom(token, "")
}

func (r *OAuth2Refresher) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(r.config.ClientID),
		ClientSecret: strings.TrimSpace(r.config.ClientSecret),
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.config.TokenURL(),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: append([]string(nil), r.config.Scopes...),
	}
}

func (r *OAuth2Refresher) clientContext(ctx context.Context) context.Context {
	client := &http.Client{Transport: transportRoundTripper{
		transport:     r.transport,
		authorization: BasicCredential(r.config.ClientID, r.config.ClientSecret),
	}}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func tokenPairFrom(token *oauth2.Token, fallbackRefresh string) (TokenPair, error) {
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return TokenPair{}, goerrors.New("core: token response has no access token", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(ErrorSessionExpired)
	}
	refresh := strings.TrimSpace(token.RefreshToken)
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return TokenPair{AccessToken: token.AccessToken, RefreshToken: refresh}, nil
}

func tokenExchangeError(grant string, err error) error {
	metadata := map[string]any{"grant_type": grant}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		metadata["status_code"] = retrieveErr.Response.StatusCode
		if retrieveErr.ErrorCode != "" {
			metadata["oauth_error"] = retrieveErr.ErrorCode
		}
		return goerrors.Wrap(err, goerrors.CategoryAuth, "core: token exchange rejected").
			WithCode(retrieveErr.Response.StatusCode).
			WithTextCode(ErrorUnauthorized).
			WithMetadata(metadata)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "core: token exchange failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorNetwork).
		WithMetadata(metadata)
}

// transportRoundTripper lets x/oauth2 drive exchanges through a core Transport.
// x/oauth2 URL-escapes the client credentials before encoding them, so the
// header is replaced with the same unescaped Basic value the Decorator sends.
type transportRoundTripper struct {
	transport     Transport
	authorization string
}

func (t transportRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = data
	}
	headers := make(map[string]string, len(req.Header))
	for key, values := range req.Header {
		if len(values) > 0 {
			headers[key] = strings.Join(values, ",")
		}
	}
	if t.authorization != "" {
		setHeader(headers, "Authorization", t.authorization)
	}
	res, err := t.transport.Do(req.Context(), TransportRequest{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	header := make(http.Header, len(res.Headers))
	for key, value := range res.Headers {
		header.Set(key, value)
	}
	return &http.Response{
		Status:        http.StatusText(res.StatusCode),
		StatusCode:    res.StatusCode,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(res.Body)),
		ContentLength: int64(len(res.Body)),
		Request:       req,
	}, nil
}

var (
	_ TokenRefresher = (*OAuth2Refresher)(nil)
	_ PasswordLogin  = (*OAuth2Refresher)(nil)
)
