package core

import (
	"fmt"
	"strings"
)

// PlatformErrorCode mirrors the storefront's payment error codes.
type PlatformErrorCode int

const (
	PlatformErrorUnknown                             PlatformErrorCode = 0
	PlatformErrorClientInvalid                       PlatformErrorCode = 1
	PlatformErrorPaymentCancelled                    PlatformErrorCode = 2
	PlatformErrorPaymentInvalid                      PlatformErrorCode = 3
	PlatformErrorPaymentNotAllowed                   PlatformErrorCode = 4
	PlatformErrorProductNotAvailable                 PlatformErrorCode = 5
	PlatformErrorCloudServicePermissionDenied        PlatformErrorCode = 6
	PlatformErrorCloudServiceNetworkConnectionFailed PlatformErrorCode = 7
	PlatformErrorCloudServiceRevoked                 PlatformErrorCode = 8
)

// Reason returns the stable snake_case reason hosts use to pick user-facing
// copy.
func (c PlatformErrorCode) Reason() string {
	switch c {
	case PlatformErrorClientInvalid:
		return "client_invalid"
	case PlatformErrorPaymentCancelled:
		return "purchase_cancelled"
	case PlatformErrorPaymentInvalid:
		return "payment_invalid"
	case PlatformErrorPaymentNotAllowed:
		return "payment_not_allowed"
	case PlatformErrorProductNotAvailable:
		return "product_not_available"
	case PlatformErrorCloudServicePermissionDenied:
		return "cloud_service_denied"
	case PlatformErrorCloudServiceNetworkConnectionFailed:
		return "network_connection_failed"
	case PlatformErrorCloudServiceRevoked:
		return "cloud_service_revoked"
	default:
		return "unknown"
	}
}

func (c PlatformErrorCode) Cancelled() bool {
	return c == PlatformErrorPaymentCancelled
}

// PlatformError is the error payload attached to failed transactions and
// failed restore sweeps.
type PlatformError struct {
	Code    PlatformErrorCode
	Domain  string
	Message string
}

func (e *PlatformError) Error() string {
	if e == nil {
		return ""
	}
	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = e.Code.Reason()
	}
	if domain := strings.TrimSpace(e.Domain); domain != "" {
		return fmt.Sprintf("%s (%s code %d)", message, domain, int(e.Code))
	}
	return fmt.Sprintf("%s (code %d)", message, int(e.Code))
}

func (e *PlatformError) Cancelled() bool {
	return e != nil && e.Code.Cancelled()
}

func (e *PlatformError) metadata() map[string]any {
	if e == nil {
		return map[string]any{}
	}
	return map[string]any{
		"platform_code":    int(e.Code),
		"platform_reason":  e.Code.Reason(),
		"platform_message": strings.TrimSpace(e.Message),
		"platform_domain":  strings.TrimSpace(e.Domain),
	}
}
