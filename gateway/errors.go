package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kontorhq/ledgerlink/core"
)

var ErrTokenRequestFailed = errors.New("gateway: token request failed")

// ProviderError is the classified failure envelope for every token endpoint
// call. Kind drives the reconnect-vs-retry decision upstream; nothing leaves
// this package unclassified.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
	Kind        core.FailureKind
	Cause       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ErrTokenRequestFailed.Error()
	}
	base := ErrTokenRequestFailed.Error()
	if strings.TrimSpace(e.Code) != "" {
		base += ": " + strings.TrimSpace(e.Code)
	}
	if strings.TrimSpace(e.Description) != "" {
		base += ": " + strings.TrimSpace(e.Description)
	}
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause != nil {
		return e.Cause
	}
	return ErrTokenRequestFailed
}

func (e *ProviderError) FaultKind() core.FailureKind {
	if e == nil {
		return core.FailureNetwork
	}
	return e.Kind
}

var _ core.ProviderFault = (*ProviderError)(nil)

// classifyFailure maps a provider error response onto the failure taxonomy.
// Unknown codes on auth statuses count as credential failures; everything
// else is treated as a transient provider fault.
func classifyFailure(statusCode int, code string) core.FailureKind {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "invalid_grant":
		return core.FailureInvalidGrant
	case "invalid_client", "unauthorized_client":
		return core.FailureInvalidClient
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.FailureInvalidClient
	}
	return core.FailureNetwork
}
