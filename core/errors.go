package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BridgeErrorBusy               = "IAP_BUSY"
	BridgeErrorProductNotFound    = "IAP_PRODUCT_NOT_FOUND"
	BridgeErrorProductQueryFailed = "IAP_PRODUCT_QUERY_FAILED"
	BridgeErrorUserCancelled      = "IAP_USER_CANCELLED"
	BridgeErrorPurchaseFailed     = "IAP_PURCHASE_FAILED"
	BridgeErrorRestoreFailed      = "IAP_RESTORE_FAILED"
	BridgeErrorClosed             = "IAP_BRIDGE_CLOSED"
	BridgeErrorFinalizeFailed     = "IAP_FINALIZE_FAILED"
	BridgeErrorBadInput           = "IAP_BAD_INPUT"
	BridgeErrorInternal           = "IAP_INTERNAL_ERROR"
)

// ErrBusy is the plain sentinel matched by IsBusy alongside the rich envelope.
var ErrBusy = errors.New("core: a purchase or restore request is already pending")

func busyError(pending PendingSnapshot) error {
	return wrapBridgeError(
		ErrBusy,
		goerrors.CategoryConflict,
		"core: bridge is busy",
		BridgeErrorBusy,
		map[string]any{
			"pending_kind":       string(pending.Kind),
			"pending_request_id": pending.RequestID,
			"pending_product_id": pending.ProductID,
		},
	)
}

func productNotFoundError(productID string, invalidIDs []string) error {
	return newBridgeError(
		"core: product not found",
		goerrors.CategoryNotFound,
		BridgeErrorProductNotFound,
		map[string]any{
			"product_id":  productID,
			"invalid_ids": append([]string(nil), invalidIDs...),
		},
	)
}

func productQueryFailedError(source error, productIDs []string) error {
	return wrapBridgeError(
		source,
		goerrors.CategoryExternal,
		"core: product query failed",
		BridgeErrorProductQueryFailed,
		map[string]any{"product_ids": append([]string(nil), productIDs...)},
	)
}

func userCancelledError(record TransactionRecord) error {
	metadata := record.Error.metadata()
	metadata["transaction_id"] = record.ID
	metadata["product_id"] = record.ProductID
	return wrapBridgeError(
		record.Error,
		goerrors.CategoryOperation,
		"core: purchase cancelled by user",
		BridgeErrorUserCancelled,
		metadata,
	)
}

func purchaseFailedError(record TransactionRecord) error {
	metadata := record.Error.metadata()
	metadata["transaction_id"] = record.ID
	metadata["product_id"] = record.ProductID
	var source error
	if record.Error != nil {
		source = record.Error
	}
	return wrapBridgeError(
		source,
		goerrors.CategoryExternal,
		"core: purchase failed",
		BridgeErrorPurchaseFailed,
		metadata,
	)
}

func submitPaymentFailedError(source error, productID string) error {
	return wrapBridgeError(
		source,
		goerrors.CategoryExternal,
		"core: submit payment failed",
		BridgeErrorPurchaseFailed,
		map[string]any{"product_id": productID},
	)
}

func restoreFailedError(source error) error {
	metadata := map[string]any{}
	var platformErr *PlatformError
	if errors.As(source, &platformErr) {
		metadata = platformErr.metadata()
	}
	return wrapBridgeError(
		source,
		goerrors.CategoryExternal,
		"core: restore purchases failed",
		BridgeErrorRestoreFailed,
		metadata,
	)
}

// finalizeFailedError reports delivered transactions the storefront did not
// acknowledge. It is external so queue consumers retry instead of
// dead-lettering.
func finalizeFailedError(source error, transactionIDs []string) error {
	return wrapBridgeError(
		source,
		goerrors.CategoryExternal,
		"core: transaction finalize failed",
		BridgeErrorFinalizeFailed,
		map[string]any{"transaction_ids": append([]string(nil), transactionIDs...)},
	)
}

func bridgeClosedError() error {
	return newBridgeError("core: bridge is closed", goerrors.CategoryInternal, BridgeErrorClosed, nil)
}

func badInputError(message string, metadata map[string]any) error {
	return newBridgeError(message, goerrors.CategoryBadInput, BridgeErrorBadInput, metadata)
}

func internalError(message string, metadata map[string]any) error {
	return newBridgeError(message, goerrors.CategoryInternal, BridgeErrorInternal, metadata)
}

func newBridgeError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(bridgeHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapBridgeError(
	source error,
	category goerrors.Category,
	message string,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return newBridgeError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(bridgeHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// TextCode returns the bridge text code carried by err, or "" for foreign
// errors.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return strings.TrimSpace(rich.TextCode)
	}
	return ""
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy) || TextCode(err) == BridgeErrorBusy
}

func IsProductNotFound(err error) bool {
	return TextCode(err) == BridgeErrorProductNotFound
}

func IsProductQueryFailed(err error) bool {
	return TextCode(err) == BridgeErrorProductQueryFailed
}

func IsUserCancelled(err error) bool {
	return TextCode(err) == BridgeErrorUserCancelled
}

func IsPurchaseFailed(err error) bool {
	return TextCode(err) == BridgeErrorPurchaseFailed
}

func IsRestoreFailed(err error) bool {
	return TextCode(err) == BridgeErrorRestoreFailed
}

func IsBridgeClosed(err error) bool {
	return TextCode(err) == BridgeErrorClosed
}

func IsFinalizeFailed(err error) bool {
	return TextCode(err) == BridgeErrorFinalizeFailed
}

// PlatformErrorOf extracts the storefront error behind a rejected purchase or
// restore.
func PlatformErrorOf(err error) (*PlatformError, bool) {
	var platformErr *PlatformError
	if errors.As(err, &platformErr) && platformErr != nil {
		return platformErr, true
	}
	return nil, false
}

func bridgeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBridgeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "already pending"):
		return ensureBridgeErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryConflict).WithTextCode(BridgeErrorBusy))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureBridgeErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(BridgeErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBridgeErrorEnvelope(mapped)
}

func ensureBridgeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bridgeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBridgeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBridgeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BridgeErrorBadInput
	case goerrors.CategoryConflict:
		return BridgeErrorBusy
	default:
		return BridgeErrorInternal
	}
}

func bridgeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
