package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LinkErrorBadInput            = "LEDGERLINK_BAD_INPUT"
	LinkErrorNotConfigured       = "LEDGERLINK_NOT_CONFIGURED"
	LinkErrorReconnectRequired   = "LEDGERLINK_RECONNECT_REQUIRED"
	LinkErrorStateMismatch       = "LEDGERLINK_STATE_MISMATCH"
	LinkErrorRefreshLocked       = "LEDGERLINK_REFRESH_LOCKED"
	LinkErrorInvalidToken        = "LEDGERLINK_INVALID_TOKEN"
	LinkErrorProviderUnavailable = "LEDGERLINK_PROVIDER_UNAVAILABLE"
	LinkErrorInternal            = "LEDGERLINK_INTERNAL"
)

// FailureKind mirrors the provider's error taxonomy. The gateway attaches a
// kind to every classified failure; the mapper translates kinds into error
// envelopes so nothing unclassified crosses the package boundary.
type FailureKind string

const (
	FailureInvalidGrant          FailureKind = "invalid_grant"
	FailureInvalidClient         FailureKind = "invalid_client"
	FailureInvalidTokenFormat    FailureKind = "invalid_token_format"
	FailureNetwork               FailureKind = "network_error"
	FailureInvalidResponseFormat FailureKind = "invalid_response_format"
)

// ProviderFault is implemented by gateway errors carrying a classified kind.
type ProviderFault interface {
	error
	FaultKind() FailureKind
}

// RequiresReconnect reports whether the failure is terminal until a human
// re-runs the authorization redirect. Reconnect failures are never retried
// automatically.
func RequiresReconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredentials) {
		return true
	}
	var fault ProviderFault
	if errors.As(err, &fault) {
		switch fault.FaultKind() {
		case FailureInvalidGrant, FailureInvalidClient:
			return true
		}
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.EqualFold(strings.TrimSpace(richErr.TextCode), LinkErrorReconnectRequired)
	}
	return false
}

// IsRetryable reports whether the scheduler's next tick may safely retry the
// failure. Reconnect-classified failures are excluded by construction.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if RequiresReconnect(err) {
		return false
	}
	if errors.Is(err, ErrCredentialsConflict) || errors.Is(err, ErrRefreshLockHeld) || errors.Is(err, ErrInvalidAccessTokenFormat) {
		return true
	}
	var fault ProviderFault
	if errors.As(err, &fault) {
		switch fault.FaultKind() {
		case FailureNetwork, FailureInvalidResponseFormat, FailureInvalidTokenFormat:
			return true
		}
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch strings.TrimSpace(richErr.TextCode) {
		case LinkErrorProviderUnavailable, LinkErrorInvalidToken, LinkErrorRefreshLocked:
			return true
		}
	}
	return false
}

func linkErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureLinkErrorEnvelope(richErr)
	}

	var fault ProviderFault
	if errors.As(err, &fault) {
		switch fault.FaultKind() {
		case FailureInvalidGrant, FailureInvalidClient:
			return newLinkError(err.Error(), goerrors.CategoryAuth, LinkErrorReconnectRequired)
		case FailureInvalidTokenFormat:
			return newLinkError(err.Error(), goerrors.CategoryValidation, LinkErrorInvalidToken)
		case FailureNetwork, FailureInvalidResponseFormat:
			return newLinkError(err.Error(), goerrors.CategoryOperation, LinkErrorProviderUnavailable)
		}
	}

	switch {
	case errors.Is(err, ErrMissingCredentials):
		return newLinkError(err.Error(), goerrors.CategoryAuth, LinkErrorReconnectRequired)
	case errors.Is(err, ErrCredentialsNotFound):
		return newLinkError(err.Error(), goerrors.CategoryNotFound, LinkErrorNotConfigured)
	case errors.Is(err, ErrStateMismatch):
		return newLinkError(err.Error(), goerrors.CategoryAuth, LinkErrorStateMismatch)
	case errors.Is(err, ErrCredentialsConflict), errors.Is(err, ErrRefreshLockHeld):
		return newLinkError(err.Error(), goerrors.CategoryConflict, LinkErrorRefreshLocked)
	case errors.Is(err, ErrInvalidAccessTokenFormat), errors.Is(err, ErrInvalidRefreshTokenFormat):
		return newLinkError(err.Error(), goerrors.CategoryValidation, LinkErrorInvalidToken)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth state"), strings.Contains(msg, "state mismatch"):
		return newLinkError(err.Error(), goerrors.CategoryAuth, LinkErrorStateMismatch)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "refresh lock"):
		return newLinkError(err.Error(), goerrors.CategoryConflict, LinkErrorRefreshLocked)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newLinkError(err.Error(), goerrors.CategoryBadInput, LinkErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureLinkErrorEnvelope(mapped)
}

func newLinkError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureLinkErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureLinkErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = linkHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultLinkTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	if strings.EqualFold(strings.TrimSpace(err.TextCode), LinkErrorReconnectRequired) {
		err.WithMetadata(map[string]any{"requiresReconnect": true})
	}
	return err
}

func defaultLinkTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return LinkErrorBadInput
	case goerrors.CategoryNotFound:
		return LinkErrorNotConfigured
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return LinkErrorReconnectRequired
	case goerrors.CategoryConflict:
		return LinkErrorRefreshLocked
	case goerrors.CategoryOperation:
		return LinkErrorProviderUnavailable
	default:
		return LinkErrorInternal
	}
}

func linkHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
