package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorNetwork        = "AUTHCLIENT_NETWORK"
	ErrorUnauthorized   = "AUTHCLIENT_UNAUTHORIZED"
	ErrorForbidden      = "AUTHCLIENT_FORBIDDEN"
	ErrorNotFound       = "AUTHCLIENT_NOT_FOUND"
	ErrorServer         = "AUTHCLIENT_SERVER_ERROR"
	ErrorBusiness       = "AUTHCLIENT_BUSINESS"
	ErrorHTTP           = "AUTHCLIENT_HTTP_ERROR"
	ErrorSessionExpired = "AUTHCLIENT_SESSION_EXPIRED"
	ErrorBadInput       = "AUTHCLIENT_BAD_INPUT"
	ErrorInternal       = "AUTHCLIENT_INTERNAL_ERROR"
)

type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindForbidden      ErrorKind = "forbidden"
	KindNotFound       ErrorKind = "not_found"
	KindServerError    ErrorKind = "server_error"
	KindBusiness       ErrorKind = "business"
	KindHTTP           ErrorKind = "http"
	KindSessionExpired ErrorKind = "session_expired"
)

const (
	messageNetwork        = "Network unavailable, please check your connection"
	messageUnauthorized   = "Authentication required"
	messageForbidden      = "You do not have permission to access this resource"
	messageNotFound       = "The requested resource was not found"
	messageServerError    = "The server encountered an error, please try again later"
	messageHTTP           = "Request failed"
	messageSessionExpired = "Your session has expired, please sign in again"
)

var ErrSessionExpired = errors.New("core: session expired")

// ClassifiedError is the caller-facing failure produced by the classifier.
// Err holds a go-errors envelope with category, HTTP code and text code.
type ClassifiedError struct {
	Kind    ErrorKind
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{fmt.Sprintf("authclient %s", e.Kind)}
	if e.Status > 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.Status))
	}
	if e.Kind == KindBusiness {
		parts = append(parts, fmt.Sprintf("code %d", e.Code))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, ": ")
}

func (e *ClassifiedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ClassifiedError) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == ErrSessionExpired && e.Kind == KindSessionExpired
}

// StatusError is the raw failure returned for requests that opt out of error
// handling and receive a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("authclient: unexpected status %d", e.StatusCode)
}

func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) && classified != nil {
		return classified, true
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	classified, ok := AsClassified(err)
	return ok && classified.Kind == kind
}

func newClassifiedError(kind ErrorKind, status int, message string, source error) *ClassifiedError {
	if strings.TrimSpace(message) == "" {
		message = defaultKindMessage(kind)
	}
	category := kindCategory(kind, status)
	code := status
	if code == 0 {
		code = kindHTTPStatus(kind)
	}
	var envelope *goerrors.Error
	if source != nil {
		envelope = goerrors.Wrap(source, category, message)
		// Wrap keeps the category of an existing envelope.
		envelope.Category = category
	} else {
		envelope = goerrors.New(message, category)
	}
	envelope = envelope.
		WithCode(code).
		WithTextCode(kindTextCode(kind))
	if status > 0 {
		envelope.WithMetadata(map[string]any{"status_code": status})
	}
	return &ClassifiedError{
		Kind:    kind,
		Status:  status,
		Message: message,
		Err:     envelope,
	}
}

func newSessionExpiredError(source error) *ClassifiedError {
	return newClassifiedError(KindSessionExpired, 0, messageSessionExpired, source)
}

func defaultKindMessage(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return messageNetwork
	case KindUnauthorized:
		return messageUnauthorized
	case KindForbidden:
		return messageForbidden
	case KindNotFound:
		return messageNotFound
	case KindServerError:
		return messageServerError
	case KindSessionExpired:
		return messageSessionExpired
	default:
		return messageHTTP
	}
}

func kindCategory(kind ErrorKind, status int) goerrors.Category {
	switch kind {
	case KindNetwork, KindServerError:
		return goerrors.CategoryExternal
	case KindUnauthorized, KindSessionExpired:
		return goerrors.CategoryAuth
	case KindForbidden:
		return goerrors.CategoryAuthz
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindBusiness:
		return goerrors.CategoryOperation
	default:
		if status == http.StatusTooManyRequests {
			return goerrors.CategoryRateLimit
		}
		return goerrors.CategoryBadInput
	}
}

func kindTextCode(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return ErrorNetwork
	case KindUnauthorized:
		return ErrorUnauthorized
	case KindForbidden:
		return ErrorForbidden
	case KindNotFound:
		return ErrorNotFound
	case KindServerError:
		return ErrorServer
	case KindBusiness:
		return ErrorBusiness
	case KindSessionExpired:
		return ErrorSessionExpired
	default:
		return ErrorHTTP
	}
}

func kindHTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindNetwork:
		return http.StatusBadGateway
	case KindUnauthorized, KindSessionExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBusiness:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func badInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func internalError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
