package sqlstore

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
)

func configError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

func notReadyError() error {
	return goerrors.New("sqlstore: credential store is not ready", goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ErrorInternal)
}

func databaseError(err error, message string, metadata map[string]any) error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
	wrapped.Category = goerrors.CategoryInternal
	if len(metadata) > 0 {
		wrapped.WithMetadata(metadata)
	}
	return wrapped
}
