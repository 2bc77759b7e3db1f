package httphelpers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"trustresolver/pkg/helpers"
)

// StatusCode returns the HTTP status code that best matches the given error.
func StatusCode(ctx context.Context, err error) int {
	_, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	switch err := err.(type) {
	case *helpers.Error:
		switch err {
		case helpers.ErrNoTrustResult:
			return http.StatusNotFound
		case helpers.ErrDuplicateKey:
			return http.StatusConflict
		case helpers.ErrIssuerNotAuthorized, helpers.ErrSignatureInvalid, helpers.ErrDigestMismatch, helpers.ErrCircularReference:
			return http.StatusBadRequest
		case helpers.ErrDIDResolutionFailed, helpers.ErrDIDResolutionPermanent, helpers.ErrVPDereferenceFailed:
			return http.StatusBadGateway
		case helpers.ErrLeaderLockHeld, helpers.ErrLeaderLockLost:
			return http.StatusConflict
		case helpers.ErrPermissionFeeRequired:
			return http.StatusPaymentRequired
		case helpers.ErrPermissionNotFound:
			return http.StatusNotFound
		case helpers.ErrInternalServerError:
			return http.StatusInternalServerError
		default:
			if errHelper, ok := err.Err.(*helpers.Error); ok {
				switch errHelper {
				case helpers.ErrDuplicateKey:
					return http.StatusConflict
				case helpers.ErrNoTrustResult:
					return http.StatusNotFound
				}
			}
			return inferStatusFromErrorTitle(err.Title)
		}
	}

	if errors.Is(err, helpers.ErrNoTrustResult) {
		return http.StatusNotFound
	}
	if errors.Is(err, helpers.ErrDuplicateKey) {
		return http.StatusConflict
	}
	if errors.Is(err, helpers.ErrInternalServerError) {
		return http.StatusInternalServerError
	}

	return inferStatusFromErrorString(err.Error())
}

// inferStatusFromErrorTitle maps error titles to HTTP status codes
func inferStatusFromErrorTitle(title string) int {
	title = strings.ToLower(title)

	switch {
	case contains(title, "not_found", "no_trust_result"):
		return http.StatusNotFound
	case contains(title, "unauthorized", "authentication"):
		return http.StatusUnauthorized
	case contains(title, "forbidden", "revoked", "access_denied"):
		return http.StatusForbidden
	case contains(title, "invalid", "validation", "bad_request", "malformed"):
		return http.StatusBadRequest
	case contains(title, "conflict", "already_exists", "duplicate", "leader_lock"):
		return http.StatusConflict
	case contains(title, "internal_server_error", "server_error"):
		return http.StatusInternalServerError
	case contains(title, "not_implemented", "unsupported"):
		return http.StatusNotImplemented
	case contains(title, "timeout", "unavailable"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// inferStatusFromErrorString infers HTTP status code from error message
func inferStatusFromErrorString(errStr string) int {
	switch {
	case contains(errStr, "not found", "missing"):
		return http.StatusNotFound
	case contains(errStr, "unauthorized", "authentication", "token"):
		return http.StatusUnauthorized
	case contains(errStr, "forbidden", "access denied", "permission", "revoked"):
		return http.StatusForbidden
	case contains(errStr, "invalid", "validation", "malformed", "bad request"):
		return http.StatusBadRequest
	case contains(errStr, "conflict", "already exists", "duplicate"):
		return http.StatusConflict
	case contains(errStr, "unsupported", "not implemented"):
		return http.StatusNotImplemented
	case contains(errStr, "timeout", "deadline"):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// contains checks if any of the substrings appear in the error string (case-insensitive)
func contains(errStr string, substrings ...string) bool {
	errLower := strings.ToLower(errStr)
	for _, substr := range substrings {
		if strings.Contains(errLower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
