package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies entitlement failures. Callers branch on the kind, never on
// message text.
type Kind string

const (
	KindInvalidFormat      Kind = "invalid_format"
	KindSignatureInvalid   Kind = "signature_invalid"
	KindMachineMismatch    Kind = "machine_mismatch"
	KindClockRollback      Kind = "clock_rollback_suspected"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindStoreCorrupted     Kind = "store_corrupted"
	KindIO                 Kind = "io_error"
	KindNotActivated       Kind = "not_activated"
	KindExpired            Kind = "license_expired"
	KindRateLimited        Kind = "rate_limited"
	KindActivationRejected Kind = "activation_rejected"
	KindPlanNotEntitled    Kind = "plan_not_entitled"
	KindUnknown            Kind = "unknown"
)

// Entitlement sentinel errors
var (
	ErrInvalidFormat      = errors.New("invalid license key format")
	ErrSignatureInvalid   = errors.New("license signature invalid")
	ErrMachineMismatch    = errors.New("license bound to a different machine")
	ErrClockRollback      = errors.New("system clock is earlier than the last recorded download")
	ErrQuotaExceeded      = errors.New("daily download limit reached")
	ErrStoreCorrupted     = errors.New("stored record is corrupted")
	ErrLockTimeout        = errors.New("timed out waiting for state file lock")
	ErrNotActivated       = errors.New("license not activated")
	ErrLicenseExpired     = errors.New("license expired")
	ErrRateLimited        = errors.New("too many activation attempts")
	ErrActivationRejected = errors.New("activation rejected")
	ErrPlanNotEntitled    = errors.New("license plan does not include Pro")
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidFormat, KindInvalidFormat},
	{ErrSignatureInvalid, KindSignatureInvalid},
	{ErrMachineMismatch, KindMachineMismatch},
	{ErrClockRollback, KindClockRollback},
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrStoreCorrupted, KindStoreCorrupted},
	{ErrLockTimeout, KindIO},
	{ErrNotActivated, KindNotActivated},
	{ErrLicenseExpired, KindExpired},
	{ErrRateLimited, KindRateLimited},
	{ErrActivationRejected, KindActivationRejected},
	{ErrPlanNotEntitled, KindPlanNotEntitled},
}

// EntitlementError carries the kind of a failure together with the
// operation that produced it.
type EntitlementError struct {
	Kind Kind
	Op   string
	Err  error

	// Quota context, set for KindQuotaExceeded
	Used  int
	Limit int
}

// Error implements the error interface
func (e *EntitlementError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *EntitlementError) Unwrap() error {
	return e.Err
}

// NewEntitlementError wraps err with kind and op.
func NewEntitlementError(kind Kind, op string, err error) *EntitlementError {
	return &EntitlementError{Kind: kind, Op: op, Err: err}
}

// QuotaExceeded builds the error returned once the free allowance is spent.
func QuotaExceeded(op string, used, limit int) *EntitlementError {
	return &EntitlementError{
		Kind:  KindQuotaExceeded,
		Op:    op,
		Err:   ErrQuotaExceeded,
		Used:  used,
		Limit: limit,
	}
}

// IOError wraps a file system failure.
func IOError(op string, err error) *EntitlementError {
	return NewEntitlementError(KindIO, op, err)
}

// KindOf returns the kind of err. Plain sentinels are recognised as well as
// wrapped EntitlementErrors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var entErr *EntitlementError
	if errors.As(err, &entErr) {
		return entErr.Kind
	}

	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the text shown to the user for err. Quota exhaustion
// and clock rollback get distinct explanations.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case KindQuotaExceeded:
		limit := 0
		var entErr *EntitlementError
		if errors.As(err, &entErr) {
			limit = entErr.Limit
		}
		if limit > 0 {
			return fmt.Sprintf("You have used all %d free downloads for today. Upgrade to Pro for unlimited downloads, or try again tomorrow.", limit)
		}
		return "You have used all free downloads for today. Upgrade to Pro for unlimited downloads, or try again tomorrow."
	case KindClockRollback:
		return "Your system date is earlier than your last recorded download. Correct the date and time settings, then try again."
	case KindInvalidFormat:
		return "License key must look like PRO-XXXX-XXXX-XXXX."
	case KindSignatureInvalid:
		return "This license could not be verified. Check the key and activation response, or contact support."
	case KindMachineMismatch:
		return "This license was activated on a different computer. Activate it again on this one."
	case KindStoreCorrupted:
		return "Saved license data is damaged. Please activate your license again."
	case KindNotActivated:
		return "No license is activated. Running in Free mode."
	case KindExpired:
		return "Your license has expired. Running in Free mode."
	case KindRateLimited:
		return "Too many activation attempts. Please wait 30 minutes and try again."
	case KindActivationRejected:
		return "The activation could not be completed. Check your key, email and activation response."
	case KindPlanNotEntitled:
		return "This license's plan does not include Pro features. Running in Free mode."
	case KindIO:
		return "Could not access local application data. Please try again."
	default:
		return "An unexpected error occurred."
	}
}

// HTTPStatus maps a kind to the status code used by the local API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidFormat:
		return http.StatusBadRequest
	case KindSignatureInvalid, KindActivationRejected:
		return http.StatusUnprocessableEntity
	case KindMachineMismatch, KindExpired, KindQuotaExceeded, KindClockRollback, KindPlanNotEntitled:
		return http.StatusForbidden
	case KindNotActivated:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStoreCorrupted:
		return http.StatusConflict
	case KindIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIError converts an entitlement failure to an APIError for rendering.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	kind := KindOf(err)
	details := map[string]interface{}{"kind": string(kind)}

	var entErr *EntitlementError
	if errors.As(err, &entErr) && entErr.Kind == KindQuotaExceeded {
		details["used"] = entErr.Used
		details["limit"] = entErr.Limit
	}

	return NewWithDetails(HTTPStatus(kind), errorCode(kind), UserMessage(err), details)
}

func errorCode(kind Kind) string {
	switch kind {
	case "", KindUnknown:
		return ErrInternalServer.ErrorCode
	case KindNotActivated:
		return ErrLicenseNotFound.ErrorCode
	}
	return strings.ToUpper(string(kind))
}
