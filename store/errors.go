package store

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
)

func notReadyError(ctx context.Context) error {
	err := goerrors.New("store: credential store is not ready", goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ErrorInternal)
	if ctx != nil && ctx.Err() != nil {
		err.WithMetadata(map[string]any{"cause": ctx.Err().Error()})
	}
	return err
}

func badKeyError() error {
	return goerrors.New("store: key is required", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

func storageError(err error, message string, metadata map[string]any) error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
	wrapped.Category = goerrors.CategoryInternal
	if len(metadata) > 0 {
		wrapped.WithMetadata(metadata)
	}
	return wrapped
}
