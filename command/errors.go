package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-iap/core"
)

// missingDependency reports a handler built without its bridge side.
func missingDependency(messageType string, dependency string) error {
	err := goerrors.New("command: "+dependency+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BridgeErrorInternal)
	err.WithMetadata(map[string]any{"message_type": messageType})
	return err
}

func invalidField(messageType string, field string, message string) error {
	err := goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BridgeErrorBadInput).
		WithSeverity(goerrors.SeverityError)
	err.WithMetadata(map[string]any{"message_type": messageType})
	return err
}

func unsupportedEventKind(kind core.TransactionEventKind) error {
	err := goerrors.New("command: unsupported transaction event kind "+string(kind), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BridgeErrorBadInput)
	err.WithMetadata(map[string]any{"message_type": TypeDeliverEvent, "event_kind": string(kind)})
	return err
}
