package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-iap/core"
)

func missingReader(messageType string, reader string) error {
	err := goerrors.New("query: "+reader+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BridgeErrorInternal)
	err.WithMetadata(map[string]any{"message_type": messageType})
	return err
}

func invalidField(messageType string, field string, message string) error {
	err := goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BridgeErrorBadInput).
		WithSeverity(goerrors.SeverityError)
	err.WithMetadata(map[string]any{"message_type": messageType})
	return err
}
