package gojob

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-iap/core"
)

func eventCodecError(message string, cause error) error {
	message = "gojob: " + message
	if cause == nil {
		return goerrors.New(message, goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.BridgeErrorBadInput)
	}
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BridgeErrorBadInput)
}

func dependencyError(message string) error {
	return goerrors.New("gojob: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BridgeErrorInternal)
}
